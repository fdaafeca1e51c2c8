/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package layer

import (
	"fmt"
	"sync"

	"devt.de/krotik/common/cryptutil"
	"devt.de/krotik/common/flowutil"
	"devt.de/krotik/common/logutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/norm"
)

/*
EventLayerChanged is posted whenever the stack gains, loses or reorders a
layer. The event source is the layer ID.
*/
const EventLayerChanged = "layer.changed"

/*
Stack manages the optimistic layers sitting on top of a store. Reads resolve
through the stack: the store supplies the base state and the layers are
replayed on top in stack order. Committing or reverting a layer removes it
and later layers are replayed against the new base on the next read - there
is no in-place rebasing.
*/
type Stack struct {
	gm     *graph.Store         // Store which provides the base state
	res    *norm.Resolver       // Identity resolver for builder objects
	layers []*Layer             // Layers in application order
	index  map[string]*Layer    // Layers by ID
	memo   map[string]cacheItem // Resolved record memo
	gen    uint64               // Generation counter for memo consistency
	events *flowutil.EventPump  // Event pump for layer change events
	mutex  *sync.RWMutex        // Mutex to protect stack operations
	log    logutil.Logger       // Logger for the stack
}

/*
cacheItem is one memoized record resolution.
*/
type cacheItem struct {
	rec data.Record
	ok  bool
}

/*
NewStack creates a new layer stack on top of a given store.
*/
func NewStack(gm *graph.Store, res *norm.Resolver) *Stack {
	s := &Stack{
		gm:     gm,
		res:    res,
		index:  make(map[string]*Layer),
		memo:   make(map[string]cacheItem),
		events: flowutil.NewEventPump(),
		mutex:  &sync.RWMutex{},
		log:    logutil.GetLogger("graphcache.layer"),
	}

	// Base writes invalidate memoized resolutions

	invalidate := func(event string, eventSource interface{}) {
		s.mutex.Lock()
		delete(s.memo, fmt.Sprint(eventSource))
		s.gen++
		s.mutex.Unlock()
	}

	gm.Events().AddObserver(graph.EventRecordStored, nil, invalidate)
	gm.Events().AddObserver(graph.EventRecordDeleted, nil, invalidate)

	return s
}

/*
Events returns the event pump of this stack.
*/
func (s *Stack) Events() *flowutil.EventPump {
	return s.events
}

/*
Layers returns the IDs of all applied layers in stack order.
*/
func (s *Stack) Layers() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.layers))
	for _, l := range s.layers {
		ids = append(ids, l.id)
	}

	return ids
}

/*
ModifyOptimistic creates a new layer from a given builder, runs the builder
in the optimistic phase and applies the layer on top of the stack. Returns
the ID of the new layer.
*/
func (s *Stack) ModifyOptimistic(builder Builder) string {
	id := fmt.Sprintf("%x", cryptutil.GenerateUUID())

	l := newLayer(id, builder)

	builder(&recorder{l, s.res, s.log})

	s.mutex.Lock()

	l.state = StateApplied
	s.layers = append(s.layers, l)
	s.index[id] = l
	s.memo = make(map[string]cacheItem)
	s.gen++

	s.mutex.Unlock()

	s.notifyLayer(l)

	return id
}

/*
Commit removes a given layer from the stack and runs its builder once more
in the commit phase with the server payload - the commit run writes directly
into the store as permanent normalized data. The layer is removed even if
the commit run writes nothing. Committing an unknown or already settled
layer is a recoverable no-op.
*/
func (s *Stack) Commit(id string, serverData map[string]interface{}) {
	l := s.takeLayer(id, StateCommitted)

	if l == nil {
		return
	}

	l.builder(&committer{s.gm, s.res, serverData, s.log})

	s.notifyLayer(l)
}

/*
Revert removes a given layer from the stack and discards its operations.
Later layers are replayed against the base on the next read. Reverting an
unknown or already settled layer is a recoverable no-op.
*/
func (s *Stack) Revert(id string) {
	l := s.takeLayer(id, StateReverted)

	if l == nil {
		return
	}

	s.notifyLayer(l)
}

/*
takeLayer removes a layer from the stack and transitions it to a final
state. Returns nil if the layer is unknown.
*/
func (s *Stack) takeLayer(id string, final State) *Layer {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	l, ok := s.index[id]

	if !ok {
		s.log.Warning("Settling unknown or already settled layer ", id, " was skipped")
		return nil
	}

	for i, sl := range s.layers {
		if sl == l {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			break
		}
	}

	delete(s.index, id)
	l.state = final
	s.memo = make(map[string]cacheItem)
	s.gen++

	return l
}

/*
notifyLayer posts change events for everything a settled or applied layer
touches.
*/
func (s *Stack) notifyLayer(l *Layer) {
	s.events.PostEvent(EventLayerChanged, l.id)

	for _, key := range l.TouchedKeys() {
		s.events.PostEvent(graph.EventRecordStored, key)
	}
	for _, identity := range l.TouchedIdentities() {
		s.events.PostEvent(graph.EventPageStored, identity)
	}
}

/*
ResolveRecord resolves an entity record through the stack. The base record
of the store is patched by every applied layer in stack order. Returns nil
if the record does not exist or an applied delete marker hides it.
*/
func (s *Stack) ResolveRecord(key string) data.Record {
	s.mutex.RLock()

	if item, ok := s.memo[key]; ok {
		s.mutex.RUnlock()

		if !item.ok {
			return nil
		}
		return item.rec.Copy()
	}

	gen := s.gen

	rec := s.gm.GetRecord(key)

	for _, l := range s.layers {
		rec = l.applyToRecord(key, rec)
	}

	s.mutex.RUnlock()

	s.mutex.Lock()
	if s.gen == gen {
		s.memo[key] = cacheItem{rec, rec != nil}
	}
	s.mutex.Unlock()

	if rec == nil {
		return nil
	}

	return rec.Copy()
}

/*
ResolveConnection applies the connection edits of all applied layers to a
composed edge list. Returns the effective edges, page info and connection
metadata.
*/
func (s *Stack) ResolveConnection(identity string, edges []data.Edge,
	pageInfo map[string]interface{}) ([]data.Edge, map[string]interface{},
	map[string]interface{}) {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	meta := make(map[string]interface{})

	for _, l := range s.layers {
		edges, pageInfo, meta = l.applyToEdges(identity, edges, pageInfo, meta)
	}

	return edges, pageInfo, meta
}
