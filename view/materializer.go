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
Package view contains the materialization layer of the cache.

The Materializer bridges resolved records and composed connections to
observable consumers. Materializing the same key twice returns the same
View object with its field map updated in place, so consumers holding a
reference keep seeing updates without re-subscribing. Change notification
is coalesced: all writes within one flush interval produce exactly one
notification per affected view. Reads are always current - a dirty view
refreshes itself synchronously when it is read, independent of the flush.
*/
package view

import (
	"fmt"
	"sync"
	"time"

	"devt.de/krotik/common/cryptutil"
	"devt.de/krotik/common/logutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/layer"
	"devt.de/krotik/graphcache/session"
)

/*
FlushInterval is the coalescing window for change notifications.
*/
var FlushInterval = time.Millisecond

/*
View is one identity-stable materialized object. The field map returned by
Fields is the same map instance for the lifetime of the view and is mutated
in place on refresh.
*/
type View struct {
	key      string                 // View key
	fields   map[string]interface{} // Stable field map
	exists   bool                   // Flag if the underlying data exists
	dirty    bool                   // Flag if a refresh is needed
	composer *session.Composer      // Composer (connection views only)
	m        *Materializer          // Owning materializer
}

/*
Key returns the key of this view.
*/
func (v *View) Key() string {
	return v.key
}

/*
Exists returns if the underlying data of this view exists. The view is
refreshed first if it is dirty.
*/
func (v *View) Exists() bool {
	v.m.refreshIfDirty(v)
	return v.exists
}

/*
Fields returns the stable field map of this view. The view is refreshed
first if it is dirty.
*/
func (v *View) Fields() map[string]interface{} {
	v.m.refreshIfDirty(v)
	return v.fields
}

/*
Subscription callback which is called with the affected view after a flush.
*/
type Callback func(v *View)

/*
subscription is one registered view observer.
*/
type subscription struct {
	viewKey string
	cb      Callback
}

/*
Materializer maintains the identity-stable view cache of a cache instance.
*/
type Materializer struct {
	gm             *graph.Store               // Store of the cache
	stack          *layer.Stack               // Layer stack of the cache
	views          map[string]*View           // Views by view key
	deps           map[string]map[string]bool // View keys by dependency key
	dirty          map[string]bool            // View keys with pending changes
	subs           map[string]*subscription   // Subscriptions by ID
	flushScheduled bool                       // Flag if a flush is pending
	mutex          *sync.Mutex                // Mutex to protect view state
	log            logutil.Logger             // Logger for the materializer
}

/*
NewMaterializer creates a new materializer on top of a store and a layer
stack.
*/
func NewMaterializer(gm *graph.Store, stack *layer.Stack) *Materializer {
	m := &Materializer{
		gm:    gm,
		stack: stack,
		views: make(map[string]*View),
		deps:  make(map[string]map[string]bool),
		dirty: make(map[string]bool),
		subs:  make(map[string]*subscription),
		mutex: &sync.Mutex{},
		log:   logutil.GetLogger("graphcache.view"),
	}

	mark := func(event string, eventSource interface{}) {
		m.markDirty(fmt.Sprint(eventSource))
	}

	for _, event := range []string{graph.EventRecordStored, graph.EventRecordDeleted,
		graph.EventPageStored, graph.EventPageDeleted} {
		gm.Events().AddObserver(event, nil, mark)
		stack.Events().AddObserver(event, nil, mark)
	}

	return m
}

/*
Record materializes an entity record resolved through the layer stack.
Repeated calls with the same key return the same View object.
*/
func (m *Materializer) Record(key string) *View {
	m.mutex.Lock()
	v, ok := m.views[key]

	if !ok {
		v = &View{key: key, fields: make(map[string]interface{}), dirty: true, m: m}
		m.views[key] = v
	}
	m.mutex.Unlock()

	m.refreshIfDirty(v)

	return v
}

/*
Connection materializes a composed connection view. Repeated calls with a
composer of the same identity return the same View object.
*/
func (m *Materializer) Connection(c *session.Composer) *View {
	key := "connection:" + c.Identity()

	m.mutex.Lock()
	v, ok := m.views[key]

	if !ok {
		v = &View{key: key, fields: make(map[string]interface{}),
			dirty: true, composer: c, m: m}
		m.views[key] = v
	}

	v.composer = c
	m.mutex.Unlock()

	m.refreshIfDirty(v)

	return v
}

/*
Subscribe registers a callback which is called once per flush for every
pending change of a view. Returns a subscription ID.
*/
func (m *Materializer) Subscribe(viewKey string, cb Callback) string {
	id := fmt.Sprintf("%x", cryptutil.GenerateUUID())

	m.mutex.Lock()
	m.subs[id] = &subscription{viewKey, cb}
	m.mutex.Unlock()

	return id
}

/*
Unsubscribe removes a subscription. Unsubscribing an unknown ID is a
recoverable no-op.
*/
func (m *Materializer) Unsubscribe(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.subs[id]; !ok {
		m.log.Warning("Removing unknown subscription ", id, " was skipped")
		return
	}

	delete(m.subs, id)
}

/*
Flush delivers all pending change notifications immediately. Each affected
view produces exactly one notification per subscriber regardless of how
many changes accumulated.
*/
func (m *Materializer) Flush() {
	m.mutex.Lock()

	m.flushScheduled = false

	pending := m.dirty
	m.dirty = make(map[string]bool)

	var notify []*subscription
	var views []*View

	for key := range pending {
		v, ok := m.views[key]

		if !ok {
			continue
		}

		v.dirty = true

		for _, sub := range m.subs {
			if sub.viewKey == key {
				notify = append(notify, sub)
				views = append(views, v)
			}
		}
	}

	m.mutex.Unlock()

	for i, sub := range notify {
		sub.cb(views[i])
	}
}

/*
markDirty marks all views depending on a given key and schedules a flush.
*/
func (m *Materializer) markDirty(depKey string) {
	m.mutex.Lock()

	affected := false

	for viewKey := range m.deps[depKey] {
		if v, ok := m.views[viewKey]; ok {
			v.dirty = true
			m.dirty[viewKey] = true
			affected = true
		}
	}

	schedule := affected && !m.flushScheduled
	if schedule {
		m.flushScheduled = true
	}

	m.mutex.Unlock()

	if schedule {
		time.AfterFunc(FlushInterval, m.Flush)
	}
}

/*
refreshIfDirty recomputes the fields of a view if it has pending changes.
*/
func (m *Materializer) refreshIfDirty(v *View) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !v.dirty {
		return
	}

	// Drop the old dependency registrations of this view

	for depKey, viewKeys := range m.deps {
		delete(viewKeys, v.key)

		if len(viewKeys) == 0 {
			delete(m.deps, depKey)
		}
	}

	deps := make(map[string]bool)

	if v.composer != nil {
		m.refreshConnection(v, deps)
	} else {
		m.refreshRecord(v, deps)
	}

	for depKey := range deps {
		if _, ok := m.deps[depKey]; !ok {
			m.deps[depKey] = make(map[string]bool)
		}
		m.deps[depKey][v.key] = true
	}

	v.dirty = false
}

/*
refreshRecord updates the field map of an entity view in place.
*/
func (m *Materializer) refreshRecord(v *View, deps map[string]bool) {
	deps[v.key] = true

	rec := m.stack.ResolveRecord(v.key)

	if rec == nil {
		v.exists = false

		for k := range v.fields {
			delete(v.fields, k)
		}

		return
	}

	v.exists = true

	fields := rec.Fields()

	for k := range v.fields {
		if _, ok := fields[k]; !ok {
			delete(v.fields, k)
		}
	}
	for k, val := range fields {
		v.fields[k] = val
	}
}

/*
refreshConnection updates the field map of a connection view in place.
*/
func (m *Materializer) refreshConnection(v *View, deps map[string]bool) {
	deps[v.composer.Identity()] = true

	for _, pageKey := range v.composer.Pages() {
		deps[pageKey] = true
	}

	cv := v.composer.View()

	edges := make([]interface{}, 0, len(cv.Edges))

	for _, edge := range cv.Edges {
		nodeKey := edge.NodeKey()
		deps[nodeKey] = true

		item := map[string]interface{}{
			"node": m.resolveNodeFields(nodeKey, edge),
		}

		for k, val := range edge {
			if k != data.RefField {
				item[k] = val
			}
		}

		edges = append(edges, item)
	}

	v.exists = true

	for k := range v.fields {
		delete(v.fields, k)
	}

	v.fields["edges"] = edges
	v.fields["pageInfo"] = cv.PageInfo

	for k, val := range cv.Meta {
		v.fields[k] = val
	}
}

/*
resolveNodeFields returns the resolved fields of an edge's node. An edge
with an inline node carries its fields directly.
*/
func (m *Materializer) resolveNodeFields(nodeKey string,
	edge map[string]interface{}) map[string]interface{} {

	if nodeKey == "" {
		if inline, ok := edge["node"].(map[string]interface{}); ok {
			return inline
		}
		return nil
	}

	if rec := m.stack.ResolveRecord(nodeKey); rec != nil {
		return rec.Fields()
	}

	m.log.Warning("Edge points at missing record ", nodeKey)

	return nil
}
