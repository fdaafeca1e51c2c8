/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graph contains the normalized record store of the cache.

Store API

The main API is provided by a Store object which can be created with the
NewStore() constructor function. The store holds entity records keyed by
entity key (Typename:id) and page records keyed by page key. Entity records
are merged field-by-field on write; page records are always overwritten
wholesale - pages are never merged at write time, composing pages into one
list is exclusively a read-time concern.

The store has no knowledge of pagination policy or plans. It only knows
records, link values and page records grouped by connection identity.

Events

Every mutation of the store posts an event to the store's event pump. The
event source is the key of the mutated record or page. Consumers (e.g. the
materializer) use these events to invalidate views.

Snapshots

The full store content can be exported to and imported from a JSON snapshot
(see ExportStore / ImportStore). A round-trip reproduces identical GetRecord
results for every key present at export time.
*/
package graph

/*
VERSION of the store
*/
const VERSION = 1

/*
Store events
*/
const (
	EventRecordStored  = "record.stored"
	EventRecordDeleted = "record.deleted"
	EventPageStored    = "page.stored"
	EventPageDeleted   = "page.deleted"
)
