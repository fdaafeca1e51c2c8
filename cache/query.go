/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cache

import (
	"fmt"
	"sync"

	"devt.de/krotik/common/cryptutil"
	"devt.de/krotik/graphcache/graph/util"
	"devt.de/krotik/graphcache/norm"
	"devt.de/krotik/graphcache/plan"
	"devt.de/krotik/graphcache/session"
)

/*
Query is a live query handle. It owns a composition session, re-evaluates
when relevant cache state changes and publishes a new result to its callback
only when the result actually changed. Multiple changes within one flush
window coalesce into at most one callback invocation.

Queries are safe for concurrent use - the flush goroutine and the caller
synchronize on a per-query mutex which also guards the query's session.
*/
type Query struct {
	id      string                 // Unique query ID
	c       *Cache                 // Owning cache
	plan    *plan.Plan             // Compiled document
	vars    map[string]interface{} // Merged variable values
	session *session.Session       // Composition session of this query
	cb      func(map[string]interface{}, error)
	mounted map[string]bool // Page keys already mounted by this query
	last    string          // Canonical form of the last published result
	closed  bool            // Flag if the query was closed
	mutex   *sync.Mutex     // Mutex to protect evaluation state
}

/*
Query starts a live query. The callback is invoked with the initial result
and again whenever the result changes. Close the returned handle to stop
receiving updates.
*/
func (c *Cache) Query(doc string, vars map[string]interface{},
	cb func(map[string]interface{}, error)) (*Query, error) {

	p, err := plan.Compile("query", doc)
	if err != nil {
		return nil, err
	}

	q := &Query{
		id:      fmt.Sprintf("%x", cryptutil.GenerateUUID()),
		c:       c,
		plan:    p,
		vars:    p.MergeVariables(vars),
		session: session.NewSession(c.gm, c.stack),
		cb:      cb,
		mounted: make(map[string]bool),
		mutex:   &sync.Mutex{},
	}

	c.mutex.Lock()
	c.queries[q.id] = q
	c.mutex.Unlock()

	q.publish(true)

	return q, nil
}

/*
ID returns the unique ID of this query.
*/
func (q *Query) ID() string {
	return q.id
}

/*
Result evaluates the query against the current cache state.
*/
func (q *Query) Result() (map[string]interface{}, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.eval()
}

/*
FetchMore mounts the connection pages a new set of pagination variables
requests into this query's view. The page payloads must have been written
with WriteQuery first.
*/
func (q *Query) FetchMore(vars map[string]interface{}) error {
	q.mutex.Lock()

	merged := make(map[string]interface{})

	for k, v := range q.vars {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	merged = q.plan.MergeVariables(merged)

	err := q.mountRequestedPages(merged)

	q.mutex.Unlock()

	if err != nil {
		return err
	}

	q.c.publishQueries()

	return nil
}

/*
Close tears down this query. The session's composer registrations are
dropped; underlying records are never deleted.
*/
func (q *Query) Close() {
	q.c.mutex.Lock()
	delete(q.c.queries, q.id)
	q.c.mutex.Unlock()

	q.mutex.Lock()
	q.closed = true
	q.session.Close()
	q.mutex.Unlock()
}

/*
mountRequestedPages mounts the page each root connection field requests for
given variable values.
*/
func (q *Query) mountRequestedPages(vars map[string]interface{}) error {
	rootKey := norm.RootKey(q.plan)

	for _, f := range q.plan.Fields() {

		if f.Skip(vars) || !f.IsConnection() {
			continue
		}

		pageKey := f.PageKey(rootKey, vars)

		if q.mounted[pageKey] {
			continue
		}

		comp := q.session.Composer(f.IdentityKey(rootKey, vars), f.Mode(), f.Dedupe())

		if err := comp.AddPage(pageKey); err != nil {

			// A missing page is retried on the next evaluation - the
			// payload may simply not have arrived yet

			if ce, ok := err.(*util.CacheError); ok && ce.Type == util.ErrUnknownPage {
				q.c.log.Debug("Page ", pageKey, " is not cached yet")
				continue
			}

			return err
		}

		q.mounted[pageKey] = true
	}

	return nil
}

/*
publish evaluates the query and invokes the callback if the result changed
since the last publication. With force set the callback is always invoked.
The callback runs outside the query mutex so it may use the handle.
*/
func (q *Query) publish(force bool) {
	q.mutex.Lock()

	if q.closed {
		q.mutex.Unlock()
		return
	}

	res, err := q.eval()

	current := canonicalResult(res, err)
	changed := current != q.last
	q.last = current

	q.mutex.Unlock()

	if force || changed {
		q.cb(res, err)
	}
}

/*
eval evaluates the query against the current cache state. Callers must hold
the query mutex.
*/
func (q *Query) eval() (map[string]interface{}, error) {

	// Pages which were missing at mount time may exist by now

	q.mountRequestedPages(q.vars)

	if !q.c.norm.HasDocument(q.plan, q.vars) {
		return nil, &util.CacheError{Type: util.ErrCacheMiss,
			Detail: q.plan.Signature(q.vars)}
	}

	return q.c.readDocument(q.plan, q.vars, q.session), nil
}

/*
canonicalResult returns a canonical string form of an evaluation outcome
for change detection.
*/
func canonicalResult(res map[string]interface{}, err error) string {
	if err != nil {
		return "error:" + err.Error()
	}

	return plan.StringifyArgs(res)
}
