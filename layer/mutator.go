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

	"devt.de/krotik/common/logutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/graph/util"
	"devt.de/krotik/graphcache/norm"
)

/*
Mutator is the mutation interface a layer builder runs against. During the
optimistic phase operations are recorded on the layer; during the commit
phase they write directly into the store as permanent normalized writes.

Patching an object with no resolvable identity returns a CacheError of type
ErrIdentity and the operation is skipped for that call - sibling operations
of the same builder run proceed.
*/
type Mutator interface {

	/*
	   Phase returns the phase this mutator runs under.
	*/
	Phase() Phase

	/*
	   Data returns the server payload during the commit phase. During the
	   optimistic phase it returns nil.
	*/
	Data() map[string]interface{}

	/*
	   Merge merges the fields of a given object into the entity it
	   identifies.
	*/
	Merge(obj map[string]interface{}) error

	/*
	   Replace replaces the entity a given object identifies with exactly
	   the given fields.
	*/
	Replace(obj map[string]interface{}) error

	/*
	   MergeKey merges fields into the entity stored under an explicit key.
	*/
	MergeKey(key string, fields map[string]interface{})

	/*
	   Delete marks the entity under a given key as deleted.
	*/
	Delete(key string)

	/*
	   Connection returns a mutator for a connection identity.
	*/
	Connection(identity string) ConnMutator
}

/*
ConnMutator mutates a composed connection view.
*/
type ConnMutator interface {

	/*
	   AddNode inserts a synthetic edge for a given object at a given
	   position (PosStart or PosEnd). Re-adding an existing node updates
	   its edge metadata in place without changing its position.
	*/
	AddNode(obj map[string]interface{}, pos string) error

	/*
	   RemoveNode removes the first edge pointing at a given entity key
	   from the effective list.
	*/
	RemoveNode(key string)

	/*
	   Patch shallow-merges into connection-level metadata. A pageInfo
	   entry is merged field-by-field rather than wholesale-replaced.
	*/
	Patch(meta map[string]interface{})
}

// Recording mutator (optimistic phase)
// ====================================

/*
recorder records builder operations on a layer without touching the store.
*/
type recorder struct {
	layer *Layer         // Layer which collects the operations
	res   *norm.Resolver // Identity resolver
	log   logutil.Logger // Logger for absorbed conditions
}

/*
Phase returns the phase this mutator runs under.
*/
func (r *recorder) Phase() Phase {
	return PhaseOptimistic
}

/*
Data returns nil - there is no server payload during the optimistic phase.
*/
func (r *recorder) Data() map[string]interface{} {
	return nil
}

/*
Merge merges the fields of a given object into the entity it identifies.
*/
func (r *recorder) Merge(obj map[string]interface{}) error {
	key := r.res.RecordKey(obj)

	if key == "" {
		r.log.Warning("Optimistic merge of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	r.layer.recordPatch(key, PatchMerge, obj)

	return nil
}

/*
Replace replaces the entity a given object identifies.
*/
func (r *recorder) Replace(obj map[string]interface{}) error {
	key := r.res.RecordKey(obj)

	if key == "" {
		r.log.Warning("Optimistic replace of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	r.layer.recordPatch(key, PatchReplace, obj)

	return nil
}

/*
MergeKey merges fields into the entity stored under an explicit key.
*/
func (r *recorder) MergeKey(key string, fields map[string]interface{}) {
	r.layer.recordPatch(key, PatchMerge, fields)
}

/*
Delete marks the entity under a given key as deleted.
*/
func (r *recorder) Delete(key string) {
	r.layer.recordPatch(key, PatchDelete, nil)
}

/*
Connection returns a mutator for a connection identity.
*/
func (r *recorder) Connection(identity string) ConnMutator {
	return &recorderConn{r, identity}
}

/*
recorderConn records connection edits on a layer.
*/
type recorderConn struct {
	r        *recorder
	identity string
}

/*
AddNode inserts a synthetic edge for a given object.
*/
func (rc *recorderConn) AddNode(obj map[string]interface{}, pos string) error {
	key := rc.r.res.RecordKey(obj)

	if key == "" {
		rc.r.log.Warning("Optimistic addNode of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	if pos != PosStart {
		pos = PosEnd
	}

	// The node's fields are recorded as an entity patch so that the
	// synthetic edge resolves to the object which was added

	rc.r.layer.recordPatch(key, PatchMerge, obj)

	rc.r.layer.recordConnEdit(rc.identity, &connEdit{
		op:   EditAddNode,
		key:  key,
		edge: data.NewEdge(key, ""),
		pos:  pos,
	})

	return nil
}

/*
RemoveNode removes the first edge pointing at a given entity key.
*/
func (rc *recorderConn) RemoveNode(key string) {
	rc.r.layer.recordConnEdit(rc.identity, &connEdit{op: EditRemoveNode, key: key})
}

/*
Patch shallow-merges into connection-level metadata.
*/
func (rc *recorderConn) Patch(meta map[string]interface{}) {
	rc.r.layer.recordConnEdit(rc.identity, &connEdit{op: EditPatch, patch: meta})
}

// Writing mutator (commit phase)
// ==============================

/*
committer writes builder operations directly into the store.
*/
type committer struct {
	gm   *graph.Store           // Store to write to
	res  *norm.Resolver         // Identity resolver
	data map[string]interface{} // Server payload of the commit
	log  logutil.Logger         // Logger for absorbed conditions
}

/*
Phase returns the phase this mutator runs under.
*/
func (c *committer) Phase() Phase {
	return PhaseCommit
}

/*
Data returns the server payload of the commit.
*/
func (c *committer) Data() map[string]interface{} {
	return c.data
}

/*
Merge merges the fields of a given object into the entity it identifies.
*/
func (c *committer) Merge(obj map[string]interface{}) error {
	key := c.res.RecordKey(obj)

	if key == "" {
		c.log.Warning("Commit merge of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	c.gm.PutRecord(key, obj)

	return nil
}

/*
Replace replaces the entity a given object identifies.
*/
func (c *committer) Replace(obj map[string]interface{}) error {
	key := c.res.RecordKey(obj)

	if key == "" {
		c.log.Warning("Commit replace of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	c.gm.DeleteRecord(key)
	c.gm.PutRecord(key, obj)

	return nil
}

/*
MergeKey merges fields into the entity stored under an explicit key.
*/
func (c *committer) MergeKey(key string, fields map[string]interface{}) {
	c.gm.PutRecord(key, fields)
}

/*
Delete removes the entity under a given key.
*/
func (c *committer) Delete(key string) {
	c.gm.DeleteRecord(key)
}

/*
Connection returns a mutator for a connection identity.
*/
func (c *committer) Connection(identity string) ConnMutator {
	return &committerConn{c, identity}
}

/*
committerConn writes connection edits permanently into page records.
*/
type committerConn struct {
	c        *committer
	identity string
}

/*
AddNode appends an edge for a given object to a page of the connection.
*/
func (cc *committerConn) AddNode(obj map[string]interface{}, pos string) error {
	key := cc.c.res.RecordKey(obj)

	if key == "" {
		cc.c.log.Warning("Commit addNode of an object without resolvable identity was skipped")
		return &util.CacheError{Type: util.ErrIdentity, Detail: fmt.Sprint(obj)}
	}

	cc.c.gm.PutRecord(key, obj)

	pages := cc.c.gm.PagesForIdentity(cc.identity)

	if len(pages) == 0 {
		cc.c.log.Warning("Commit addNode on connection ", cc.identity,
			" without page records was skipped")
		return nil
	}

	// Deduplicate by entity key across all pages of the identity

	for _, pkey := range pages {
		page := cc.c.gm.GetPage(pkey)

		for i, edge := range page.Edges {
			if edge.NodeKey() == key {
				merged := edge.Copy()
				merged.Merge(data.NewEdge(key, ""))
				page.Edges[i] = merged

				cc.c.gm.PutPage(page)

				return nil
			}
		}
	}

	if pos == PosStart {
		page := cc.c.gm.GetPage(pages[0])
		page.Edges = append([]data.Edge{data.NewEdge(key, "")}, page.Edges...)
		cc.c.gm.PutPage(page)

	} else {
		page := cc.c.gm.GetPage(pages[len(pages)-1])
		page.Edges = append(page.Edges, data.NewEdge(key, ""))
		cc.c.gm.PutPage(page)
	}

	return nil
}

/*
RemoveNode removes the first edge pointing at a given entity key.
*/
func (cc *committerConn) RemoveNode(key string) {

	for _, pkey := range cc.c.gm.PagesForIdentity(cc.identity) {
		page := cc.c.gm.GetPage(pkey)

		for i, edge := range page.Edges {

			if edge.NodeKey() == key {
				page.Edges = append(page.Edges[:i], page.Edges[i+1:]...)
				cc.c.gm.PutPage(page)

				return
			}
		}
	}
}

/*
Patch shallow-merges into the page info of the most recent page.
*/
func (cc *committerConn) Patch(meta map[string]interface{}) {
	pages := cc.c.gm.PagesForIdentity(cc.identity)

	if len(pages) == 0 {
		return
	}

	page := cc.c.gm.GetPage(pages[len(pages)-1])

	for k, v := range meta {

		if k == "pageInfo" {
			if pi, ok := v.(map[string]interface{}); ok {
				page.PageInfo = data.MergePageInfo(page.PageInfo, pi)
			}
		} else {
			page.PageInfo[k] = v
		}
	}

	cc.c.gm.PutPage(page)
}
