/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"sort"
	"sync"

	"devt.de/krotik/common/flowutil"
	"devt.de/krotik/graphcache/graph/data"
)

/*
Store is the normalized record store. All public operations are synchronous
and run to completion before any other store operation can interleave. The
store provides no cross-key transactionality - atomicity across multiple
keys is the responsibility of the normalizer and the layer stack.
*/
type Store struct {
	records    map[string]data.Record       // Entity records by entity key
	pages      map[string]*Page             // Page records by page key
	identities map[string]map[string]string // Page keys grouped by connection identity
	events     *flowutil.EventPump          // Event pump for store events
	mutex      *sync.RWMutex                // Mutex to protect store operations
}

/*
NewStore creates a new Store instance.
*/
func NewStore() *Store {
	return &Store{
		records:    make(map[string]data.Record),
		pages:      make(map[string]*Page),
		identities: make(map[string]map[string]string),
		events:     flowutil.NewEventPump(),
		mutex:      &sync.RWMutex{},
	}
}

/*
Events returns the event pump of this store.
*/
func (s *Store) Events() *flowutil.EventPump {
	return s.events
}

/*
PutRecord merges the given fields into the record stored under a given key.
The record is created if it does not exist. Merging is per field - the last
write wins for each field, the record is never wholesale-replaced. Setting
a nil value removes the field.
*/
func (s *Store) PutRecord(key string, fields map[string]interface{}) {
	s.mutex.Lock()

	rec, ok := s.records[key]

	if !ok {
		rec = data.NewRecord()
		rec.SetAttr(data.RecordKey, key)
		s.records[key] = rec
	}

	for field, val := range fields {
		rec.SetAttr(field, val)
	}

	s.mutex.Unlock()

	s.events.PostEvent(EventRecordStored, key)
}

/*
GetRecord returns a copy of the record stored under a given key or nil if
no record exists.
*/
func (s *Store) GetRecord(key string) data.Record {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if rec, ok := s.records[key]; ok {
		return rec.Copy()
	}

	return nil
}

/*
HasRecord returns if a record exists under a given key.
*/
func (s *Store) HasRecord(key string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.records[key]

	return ok
}

/*
DeleteRecord removes the record stored under a given key. Link values of
other records which point to the removed record are left dangling - they
resolve to missing downstream and are not eagerly swept.
*/
func (s *Store) DeleteRecord(key string) {
	s.mutex.Lock()

	_, ok := s.records[key]
	delete(s.records, key)

	s.mutex.Unlock()

	if ok {
		s.events.PostEvent(EventRecordDeleted, key)
	}
}

/*
PutPage stores a page record. An existing page record with the same key is
overwritten wholesale - pages are never merged at write time.
*/
func (s *Store) PutPage(page *Page) {
	s.mutex.Lock()

	s.pages[page.Key] = page

	pages, ok := s.identities[page.Identity]
	if !ok {
		pages = make(map[string]string)
		s.identities[page.Identity] = pages
	}
	pages[page.Key] = ""

	s.mutex.Unlock()

	s.events.PostEvent(EventPageStored, page.Key)
}

/*
GetPage returns a copy of the page record stored under a given page key or
nil if no page exists.
*/
func (s *Store) GetPage(key string) *Page {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if page, ok := s.pages[key]; ok {
		return page.Copy()
	}

	return nil
}

/*
HasPage returns if a page record exists under a given page key.
*/
func (s *Store) HasPage(key string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.pages[key]

	return ok
}

/*
DeletePage removes the page record stored under a given page key.
*/
func (s *Store) DeletePage(key string) {
	s.mutex.Lock()

	page, ok := s.pages[key]
	delete(s.pages, key)

	if ok {
		if pages, ok2 := s.identities[page.Identity]; ok2 {
			delete(pages, key)

			if len(pages) == 0 {
				delete(s.identities, page.Identity)
			}
		}
	}

	s.mutex.Unlock()

	if ok {
		s.events.PostEvent(EventPageDeleted, key)
	}
}

/*
PagesForIdentity returns the keys of all page records which belong to a
given connection identity.
*/
func (s *Store) PagesForIdentity(identity string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]string, 0)

	for key := range s.identities[identity] {
		res = append(res, key)
	}

	sort.Strings(res)

	return res
}

/*
Keys returns all stored entity keys.
*/
func (s *Store) Keys() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]string, 0, len(s.records))

	for key := range s.records {
		res = append(res, key)
	}

	sort.Strings(res)

	return res
}

/*
PageKeys returns all stored page keys.
*/
func (s *Store) PageKeys() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]string, 0, len(s.pages))

	for key := range s.pages {
		res = append(res, key)
	}

	sort.Strings(res)

	return res
}
