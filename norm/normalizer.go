/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package norm

import (
	"devt.de/krotik/common/logutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/plan"
)

/*
Root record keys by operation type. Root selections of a document are stored
as fields of a synthetic root record.
*/
const (
	RootQuery        = "Query"
	RootMutation     = "Mutation"
	RootSubscription = "Subscription"
)

/*
Normalizer writes response payloads into a store guided by compiled plans.
*/
type Normalizer struct {
	gm  *graph.Store   // Store to write to
	res *Resolver      // Identity resolver
	log logutil.Logger // Logger for absorbed conditions
}

/*
NewNormalizer creates a new Normalizer instance.
*/
func NewNormalizer(gm *graph.Store, res *Resolver) *Normalizer {
	return &Normalizer{gm, res, logutil.GetLogger("graphcache.norm")}
}

/*
Resolver returns the identity resolver of this normalizer.
*/
func (n *Normalizer) Resolver() *Resolver {
	return n.res
}

/*
RootKey returns the root record key for a given plan.
*/
func RootKey(p *plan.Plan) string {

	switch p.OpType() {
	case plan.OpMutation:
		return RootMutation
	case plan.OpSubscription:
		return RootSubscription
	}

	return RootQuery
}

/*
NormalizeDocument walks a response payload guided by a plan and writes
entity records and page records into the store. Objects with a resolvable
identity are merged as entity records; every connection field overwrites
exactly one page record. Normalizing the same payload twice yields an
identical store state.
*/
func (n *Normalizer) NormalizeDocument(p *plan.Plan, vars map[string]interface{},
	payload map[string]interface{}) error {

	vars = p.MergeVariables(vars)
	rootKey := RootKey(p)

	rootFields := make(map[string]interface{})

	for _, f := range p.Fields() {

		if f.Skip(vars) {
			continue
		}

		if val, ok := payload[f.Alias()]; ok {
			n.normalizeField(rootKey, rootFields, f, val, vars)
		}
	}

	if len(rootFields) > 0 {
		n.gm.PutRecord(rootKey, rootFields)
	}

	return nil
}

/*
HasDocument returns if every top-level field the plan requires is already
present in the store. For connections the specific page the variables
request must be present - a partially-present connection counts as absent.
*/
func (n *Normalizer) HasDocument(p *plan.Plan, vars map[string]interface{}) bool {
	vars = p.MergeVariables(vars)
	rootKey := RootKey(p)

	root := n.gm.GetRecord(rootKey)

	for _, f := range p.Fields() {

		if f.Skip(vars) {
			continue
		}

		if f.IsConnection() {

			if !n.gm.HasPage(f.PageKey(rootKey, vars)) {
				return false
			}

			continue
		}

		if root == nil {
			return false
		}

		if _, ok := root.Fields()[f.FieldKey(vars)]; !ok {
			return false
		}
	}

	return true
}

/*
normalizeField normalizes the value of a single plan field. Entity and page
writes go directly to the store; the value to store on the parent record is
written into the given parent field map.
*/
func (n *Normalizer) normalizeField(parentKey string, parentFields map[string]interface{},
	f *plan.PlanField, val interface{}, vars map[string]interface{}) {

	if f.IsConnection() {

		if conn, ok := val.(map[string]interface{}); ok {
			n.gm.PutPage(n.buildPage(parentKey, f, conn, vars))
		} else {
			n.log.Warning("Connection field ", f.QualifiedName(),
				" did not return an object - skipping")
		}

		return
	}

	if f.Kind() == plan.Link {

		if obj, ok := val.(map[string]interface{}); ok {
			parentFields[f.FieldKey(vars)] = n.normalizeObject(f, obj, vars)

		} else if list, ok := val.([]interface{}); ok {
			res := make([]interface{}, 0, len(list))

			for _, item := range list {
				if obj, ok := item.(map[string]interface{}); ok {
					res = append(res, n.normalizeObject(f, obj, vars))
				} else {
					res = append(res, item)
				}
			}

			parentFields[f.FieldKey(vars)] = res

		} else {
			parentFields[f.FieldKey(vars)] = val
		}

		return
	}

	// Plain scalar field

	parentFields[f.FieldKey(vars)] = val
}

/*
normalizeObject normalizes a payload object. If the object has a resolvable
identity it is written as an entity record and a link value is returned.
Otherwise the object is kept inline under its parent - a skipped identity
never fails sibling writes.
*/
func (n *Normalizer) normalizeObject(f *plan.PlanField, obj map[string]interface{},
	vars map[string]interface{}) interface{} {

	key := n.res.RecordKey(obj)

	if key == "" {

		n.log.Debug("Object in field ", f.QualifiedName(),
			" has no resolvable identity - storing inline")

		inline := make(map[string]interface{})
		n.normalizeChildren(f, "", inline, obj, vars)

		return inline
	}

	fields := make(map[string]interface{})
	fields[data.RecordTypename] = n.res.Typename(obj)

	n.normalizeChildren(f, key, fields, obj, vars)

	n.gm.PutRecord(key, fields)

	return data.NewRef(key)
}

/*
normalizeChildren normalizes all child selections of a field against a
payload object. Children with an unsatisfied type condition are skipped.
*/
func (n *Normalizer) normalizeChildren(f *plan.PlanField, parentKey string,
	parentFields map[string]interface{}, obj map[string]interface{},
	vars map[string]interface{}) {

	typename := n.res.Typename(obj)

	for _, c := range f.Children() {

		if c.Skip(vars) || !n.res.MatchesType(typename, c.OnType()) {
			continue
		}

		if val, ok := obj[c.Alias()]; ok {

			if c.IsConnection() && parentKey == "" {

				// A connection below an inline object has no parent record
				// to hang off - keep the raw value inline

				parentFields[c.Alias()] = val
				continue
			}

			n.normalizeField(parentKey, parentFields, c, val, vars)
		}
	}
}

/*
buildPage builds a page record from a connection field value.
*/
func (n *Normalizer) buildPage(parentKey string, f *plan.PlanField,
	conn map[string]interface{}, vars map[string]interface{}) *graph.Page {

	page := &graph.Page{
		Key:      f.PageKey(parentKey, vars),
		Identity: f.IdentityKey(parentKey, vars),
		Field:    f.QualifiedName(),
		Parent:   parentKey,
		Args:     f.BuildArgs(vars),
		Edges:    make([]data.Edge, 0),
		PageInfo: make(map[string]interface{}),
	}

	edgesPlan := f.Child("edges")

	if rawEdges, ok := conn["edges"].([]interface{}); ok && edgesPlan != nil {

		var nodePlan *plan.PlanField
		if nodePlan = edgesPlan.Child("node"); nodePlan == nil {
			nodePlan = &plan.PlanField{}
		}

		for _, rawEdge := range rawEdges {
			em, ok := rawEdge.(map[string]interface{})
			if !ok {
				continue
			}

			edge := make(data.Edge)

			if rawNode, ok := em["node"].(map[string]interface{}); ok {
				res := n.normalizeObject(nodePlan, rawNode, vars)

				if ref, isRef := res.(data.Ref); isRef {
					edge[data.RefField] = ref
				} else {
					edge["node"] = res
				}
			}

			// Carry cursor and edge metadata selections

			for _, ec := range edgesPlan.Children() {

				if ec.Name() == "node" {
					continue
				}

				if val, ok := em[ec.Alias()]; ok {
					edge[ec.Alias()] = val
				}
			}

			page.Edges = append(page.Edges, edge)
		}
	}

	if pi, ok := conn["pageInfo"].(map[string]interface{}); ok {
		page.PageInfo = data.MergePageInfo(page.PageInfo, pi)
	}

	// Connection-level scalar fields (e.g. totalCount) are kept on the page info

	for _, c := range f.Children() {

		if c.Name() == "edges" || c.Name() == "pageInfo" {
			continue
		}

		if val, ok := conn[c.Alias()]; ok {
			if _, isMap := val.(map[string]interface{}); !isMap {
				page.PageInfo[c.Alias()] = val
			}
		}
	}

	return page
}
