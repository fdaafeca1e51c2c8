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
Package cache contains the public facade of GraphCache.

A Cache instance ties together the normalized store, the document planner,
the normalizer, the optimistic layer stack, the connection composition and
the materializer. Callers write server payloads in with WriteQuery, read
normalized state back out with ReadQuery or a live Query and stage
optimistic changes through ModifyOptimistic / CommitOptimistic /
RevertOptimistic. The cache never performs network operations.
*/
package cache

import (
	"fmt"
	"io"
	"sync"
	"time"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/logutil"
	"devt.de/krotik/graphcache/config"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/graph/util"
	"devt.de/krotik/graphcache/layer"
	"devt.de/krotik/graphcache/norm"
	"devt.de/krotik/graphcache/plan"
	"devt.de/krotik/graphcache/session"
	"devt.de/krotik/graphcache/view"
)

/*
Options configures a new Cache instance.
*/
type Options struct {

	/*
	   Keys maps type names to identity functions. Types without an entry
	   use the default id / _id lookup.
	*/
	Keys map[string]norm.KeyFunc

	/*
	   Interfaces maps interface names to their concrete type names. Used
	   when matching fragment type conditions.
	*/
	Interfaces map[string][]string
}

/*
Cache is one GraphCache instance.
*/
type Cache struct {
	gm         *graph.Store       // Normalized record store
	res        *norm.Resolver     // Identity resolver
	norm       *norm.Normalizer   // Payload normalizer
	stack      *layer.Stack       // Optimistic layer stack
	mat        *view.Materializer // Identity-stable view cache
	reads      *datautil.MapCache // Read-dedupe result cache
	queries    map[string]*Query  // Open live queries by ID
	queryFlush bool               // Flag if a query flush is pending
	hydrated   time.Time          // Time of the last hydration
	mutex      *sync.Mutex        // Mutex for facade state
	log        logutil.Logger     // Logger for the facade
}

/*
New creates a new Cache instance.
*/
func New(opts *Options) *Cache {

	if config.Config == nil {
		config.LoadDefaultConfig()
	}

	if opts == nil {
		opts = &Options{}
	}

	plan.PaginationArguments = config.StrList(config.PaginationArguments)
	plan.DefaultMode = config.Str(config.DefaultComposeMode)
	plan.DefaultDedupe = config.Str(config.DefaultDedupeStrategy)

	gm := graph.NewStore()
	res := norm.NewResolver(opts.Keys, opts.Interfaces)
	stack := layer.NewStack(gm, res)

	c := &Cache{
		gm:    gm,
		res:   res,
		norm:  norm.NewNormalizer(gm, res),
		stack: stack,
		mat:   view.NewMaterializer(gm, stack),
		reads: datautil.NewMapCache(uint64(config.Int(config.ResultCacheMaxSize)),
			config.Int(config.ResultCacheMaxAgeSeconds)),
		queries: make(map[string]*Query),
		mutex:   &sync.Mutex{},
		log:     logutil.GetLogger("graphcache"),
	}

	// Any store or layer change schedules a coalesced live query flush

	touch := func(event string, eventSource interface{}) {
		c.scheduleQueryFlush()
	}

	for _, event := range []string{graph.EventRecordStored, graph.EventRecordDeleted,
		graph.EventPageStored, graph.EventPageDeleted} {
		gm.Events().AddObserver(event, nil, touch)
		stack.Events().AddObserver(event, nil, touch)
	}

	return c
}

/*
scheduleQueryFlush schedules a re-evaluation of all open live queries.
Multiple changes within one flush window coalesce into a single flush.
*/
func (c *Cache) scheduleQueryFlush() {
	c.mutex.Lock()

	if c.queryFlush || len(c.queries) == 0 {
		c.mutex.Unlock()
		return
	}

	c.queryFlush = true
	c.mutex.Unlock()

	time.AfterFunc(view.FlushInterval, c.publishQueries)
}

/*
publishQueries re-evaluates all open live queries and publishes the results
which changed since the last publication.
*/
func (c *Cache) publishQueries() {
	c.mutex.Lock()

	c.queryFlush = false

	queries := make([]*Query, 0, len(c.queries))
	for _, q := range c.queries {
		queries = append(queries, q)
	}

	c.mutex.Unlock()

	for _, q := range queries {
		q.publish(false)
	}
}

/*
Store returns the normalized record store of this cache.
*/
func (c *Cache) Store() *graph.Store {
	return c.gm
}

/*
Stack returns the optimistic layer stack of this cache.
*/
func (c *Cache) Stack() *layer.Stack {
	return c.stack
}

/*
Materializer returns the view cache of this cache.
*/
func (c *Cache) Materializer() *view.Materializer {
	return c.mat
}

/*
WriteQuery normalizes a server payload for a given document and variables
into the store.
*/
func (c *Cache) WriteQuery(doc string, vars map[string]interface{},
	payload map[string]interface{}) error {

	p, err := plan.Compile("query", doc)
	if err != nil {
		return err
	}

	if err := c.norm.NormalizeDocument(p, vars, payload); err != nil {
		return err
	}

	c.dropReadCache()

	return nil
}

/*
ReadQuery reads a document result from the cache only. No network request
is ever made - if the store cannot satisfy every top-level field (and for
connections the exact page the variables request) a CacheError of type
ErrCacheMiss is returned. Repeated reads with an identical document and
variables signature within the result cache window return the most recent
result without recomputation.
*/
func (c *Cache) ReadQuery(doc string, vars map[string]interface{}) (map[string]interface{}, error) {

	p, err := plan.Compile("query", doc)
	if err != nil {
		return nil, err
	}

	vars = p.MergeVariables(vars)

	sig := fmt.Sprintf("%s|%s", doc, plan.StringifyArgs(vars))

	if res, ok := c.reads.Get(sig); ok {
		return res.(map[string]interface{}), nil
	}

	if !c.norm.HasDocument(p, vars) {
		return nil, &util.CacheError{Type: util.ErrCacheMiss, Detail: p.Signature(vars)}
	}

	res := c.readDocument(p, vars, nil)

	c.reads.Put(sig, res)

	return res, nil
}

/*
ModifyOptimistic stages an optimistic change. The given builder runs once
immediately in the optimistic phase; its operations become visible to all
reads without touching the store. Returns the layer ID for CommitOptimistic
or RevertOptimistic.
*/
func (c *Cache) ModifyOptimistic(builder layer.Builder) string {
	defer c.dropReadCache()

	return c.stack.ModifyOptimistic(builder)
}

/*
CommitOptimistic finalizes an optimistic change with the server payload.
The builder runs once more in the commit phase writing permanent normalized
data; the layer is dropped unconditionally.
*/
func (c *Cache) CommitOptimistic(id string, serverData map[string]interface{}) {
	c.stack.Commit(id, serverData)
	c.dropReadCache()
}

/*
RevertOptimistic discards an optimistic change. Reverting an unknown layer
ID is a recoverable no-op.
*/
func (c *Cache) RevertOptimistic(id string) {
	c.stack.Revert(id)
	c.dropReadCache()
}

/*
Dehydrate writes a snapshot of the full store to a given writer.
*/
func (c *Cache) Dehydrate(out io.Writer) error {
	return graph.ExportStore(out, c.gm)
}

/*
Hydrate loads a snapshot produced by Dehydrate into the store. With
materialize set, views for all hydrated records are built eagerly so
consumers can subscribe before the first read. For a configured window
after hydration reads prefer the hydrated state - see WithinHydrationWindow.
*/
func (c *Cache) Hydrate(in io.Reader, materialize bool) error {

	if err := graph.ImportStore(in, c.gm); err != nil {
		return err
	}

	c.mutex.Lock()
	c.hydrated = time.Now()
	c.mutex.Unlock()

	if materialize {
		for _, key := range c.gm.Keys() {
			c.mat.Record(key)
		}
	}

	c.dropReadCache()

	return nil
}

/*
WithinHydrationWindow returns if the last hydration happened within the
configured preference window. Callers which normally read from cache and
network should skip the network request once during this window to avoid
visible flicker right after startup.
*/
func (c *Cache) WithinHydrationWindow() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.hydrated.IsZero() {
		return false
	}

	window := time.Duration(config.Int(config.HydrationWindowSeconds)) * time.Second

	return time.Since(c.hydrated) < window
}

// Debug / inspection surface
// ==========================

/*
Keys returns all stored entity keys. Inspection only - never used by the
write path.
*/
func (c *Cache) Keys() []string {
	return c.gm.Keys()
}

/*
Record returns a raw snapshot of the record stored under a given key
without layer resolution.
*/
func (c *Cache) Record(key string) data.Record {
	return c.gm.GetRecord(key)
}

/*
ResolvedRecord returns the record stored under a given key with all
optimistic layers applied.
*/
func (c *Cache) ResolvedRecord(key string) data.Record {
	return c.stack.ResolveRecord(key)
}

/*
PagesForIdentity returns the page keys contributing to a given connection
identity.
*/
func (c *Cache) PagesForIdentity(identity string) []string {
	return c.gm.PagesForIdentity(identity)
}

/*
dropReadCache invalidates all deduplicated read results.
*/
func (c *Cache) dropReadCache() {
	c.mutex.Lock()
	c.reads = datautil.NewMapCache(uint64(config.Int(config.ResultCacheMaxSize)),
		config.Int(config.ResultCacheMaxAgeSeconds))
	c.mutex.Unlock()
}

// Read path
// =========

/*
readDocument builds a document result from the store through the layer
stack. If a session is given its composers determine the edges of each
connection field; without a session a connection exposes exactly the page
the variables request.
*/
func (c *Cache) readDocument(p *plan.Plan, vars map[string]interface{},
	s *session.Session) map[string]interface{} {

	rootKey := norm.RootKey(p)
	root := c.stack.ResolveRecord(rootKey)

	res := make(map[string]interface{})

	for _, f := range p.Fields() {

		if f.Skip(vars) {
			continue
		}

		if f.IsConnection() {
			res[f.Alias()] = c.readConnection(rootKey, f, vars, s)
			continue
		}

		if root == nil {
			continue
		}

		if val, ok := root.Fields()[f.FieldKey(vars)]; ok {
			res[f.Alias()] = c.readValue(f, val, vars)
		}
	}

	return res
}

/*
readValue denormalizes a stored field value for a result. Link values are
resolved through the layer stack and their child selections read
recursively.
*/
func (c *Cache) readValue(f *plan.PlanField, val interface{},
	vars map[string]interface{}) interface{} {

	if key, ok := data.RefKey(val); ok {
		return c.readRecord(key, f, vars)
	}

	if list, ok := val.([]interface{}); ok {
		res := make([]interface{}, 0, len(list))

		for _, item := range list {
			res = append(res, c.readValue(f, item, vars))
		}

		return res
	}

	if obj, ok := val.(map[string]interface{}); ok {

		// Inline object - read the selected children directly

		return c.readInline(f, obj, vars)
	}

	return val
}

/*
readRecord reads the selected fields of an entity record resolved through
the layer stack. A dangling link resolves to nil.
*/
func (c *Cache) readRecord(key string, f *plan.PlanField,
	vars map[string]interface{}) interface{} {

	rec := c.stack.ResolveRecord(key)

	if rec == nil {
		c.log.Debug("Link to missing record ", key, " resolves to nil")
		return nil
	}

	fields := rec.Fields()
	typename := rec.Typename()

	res := make(map[string]interface{})

	for _, child := range f.Children() {

		if child.Skip(vars) || !c.res.MatchesType(typename, child.OnType()) {
			continue
		}

		if child.IsConnection() {
			res[child.Alias()] = c.readConnection(key, child, vars, nil)
			continue
		}

		if val, ok := fields[child.FieldKey(vars)]; ok {
			res[child.Alias()] = c.readValue(child, val, vars)
		}
	}

	return res
}

/*
readInline reads the selected children of an inline (non-normalized) object.
*/
func (c *Cache) readInline(f *plan.PlanField, obj map[string]interface{},
	vars map[string]interface{}) map[string]interface{} {

	if len(f.Children()) == 0 {
		return obj
	}

	typename := c.res.Typename(obj)

	res := make(map[string]interface{})

	for _, child := range f.Children() {

		if child.Skip(vars) || !c.res.MatchesType(typename, child.OnType()) {
			continue
		}

		if val, ok := obj[child.Alias()]; ok {
			res[child.Alias()] = c.readValue(child, val, vars)
		}
	}

	return res
}

/*
readConnection builds the result object of a connection field. With a
session the composed view of all mounted pages is exposed; without one the
exact page the variables request.
*/
func (c *Cache) readConnection(parentKey string, f *plan.PlanField,
	vars map[string]interface{}, s *session.Session) map[string]interface{} {

	identity := f.IdentityKey(parentKey, vars)

	var cv *sessionView

	if s != nil {
		comp := s.Composer(identity, f.Mode(), f.Dedupe())
		v := comp.View()
		cv = &sessionView{v.Edges, v.PageInfo, v.Meta}

	} else {

		// One-shot read - compose exactly the requested page

		var edges []data.Edge
		pageInfo := make(map[string]interface{})

		if page := c.gm.GetPage(f.PageKey(parentKey, vars)); page != nil {
			edges = page.Edges
			pageInfo = page.PageInfo
		}

		rEdges, rInfo, rMeta := c.stack.ResolveConnection(identity, edges, pageInfo)
		cv = &sessionView{rEdges, rInfo, rMeta}
	}

	res := make(map[string]interface{})

	edgesPlan := f.Child("edges")
	nodePlan := &plan.PlanField{}

	if edgesPlan != nil {
		if np := edgesPlan.Child("node"); np != nil {
			nodePlan = np
		}
	}

	edges := make([]interface{}, 0, len(cv.edges))

	for _, edge := range cv.edges {
		item := make(map[string]interface{})

		if key := edge.NodeKey(); key != "" {
			item["node"] = c.readRecord(key, nodePlan, vars)
		} else if inline, ok := edge["node"].(map[string]interface{}); ok {
			item["node"] = inline
		}

		for k, val := range edge {
			if k != data.RefField && k != "node" {
				item[k] = val
			}
		}

		edges = append(edges, item)
	}

	res["edges"] = edges
	res["pageInfo"] = cv.pageInfo

	// Connection-level scalars (e.g. totalCount) are kept on the page info
	// at write time and surface as plain fields on read

	for _, child := range f.Children() {

		if child.Name() == "edges" || child.Name() == "pageInfo" {
			continue
		}

		if val, ok := cv.pageInfo[child.Alias()]; ok {
			res[child.Alias()] = val
		}
	}

	for k, val := range cv.meta {
		res[k] = val
	}

	return res
}

/*
sessionView carries a composed connection state through the read path.
*/
type sessionView struct {
	edges    []data.Edge
	pageInfo map[string]interface{}
	meta     map[string]interface{}
}
