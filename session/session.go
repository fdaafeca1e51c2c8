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
Package session contains the read-time connection composition of the cache.

A Session is created per live query and holds one Composer per connection
identity the query is interested in. Composers concatenate and deduplicate
the edges of mounted page records into a single view; they read the store
and the layer stack but never mutate either. Closing a session drops its
registrations without deleting any underlying records.
*/
package session

import (
	"fmt"
	"sort"

	"devt.de/krotik/common/cryptutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/layer"
)

/*
Session is a per-subscriber registry of connection composers.
*/
type Session struct {
	id        string               // Unique session ID
	gm        *graph.Store         // Store of the cache
	stack     *layer.Stack         // Layer stack of the cache
	composers map[string]*Composer // Composers by connection identity
}

/*
NewSession creates a new composition session.
*/
func NewSession(gm *graph.Store, stack *layer.Stack) *Session {
	return &Session{
		id:        fmt.Sprintf("%x", cryptutil.GenerateUUID()),
		gm:        gm,
		stack:     stack,
		composers: make(map[string]*Composer),
	}
}

/*
ID returns the unique ID of this session.
*/
func (s *Session) ID() string {
	return s.id
}

/*
Composer returns the composer for a given connection identity. The composer
is created on first use with the given mode and dedupe strategy and reused
for repeated requests of the same identity.
*/
func (s *Session) Composer(identity string, mode string, dedupe string) *Composer {
	c, ok := s.composers[identity]

	if !ok {
		c = NewComposer(s.gm, s.stack, identity, mode, dedupe)
		s.composers[identity] = c
	}

	return c
}

/*
Identities returns all connection identities with a composer in this
session.
*/
func (s *Session) Identities() []string {
	ids := make([]string, 0, len(s.composers))

	for identity := range s.composers {
		ids = append(ids, identity)
	}

	sort.Strings(ids)

	return ids
}

/*
Close drops all composer registrations of this session.
*/
func (s *Session) Close() {
	s.composers = make(map[string]*Composer)
}
