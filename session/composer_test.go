/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session

import (
	"fmt"
	"testing"

	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/layer"
	"devt.de/krotik/graphcache/norm"
	"devt.de/krotik/graphcache/plan"
)

func newTestSession() (*graph.Store, *layer.Stack, *Session) {
	gm := graph.NewStore()
	st := layer.NewStack(gm, norm.NewResolver(nil, nil))
	return gm, st, NewSession(gm, st)
}

func putTestPage(gm *graph.Store, key string, args map[string]interface{},
	edges ...data.Edge) {

	gm.PutPage(&graph.Page{
		Key:      key,
		Identity: "Query.todos({})",
		Field:    "todos",
		Parent:   "Query",
		Args:     args,
		Edges:    edges,
		PageInfo: map[string]interface{}{"endCursor": key},
	})
}

func edgeKeys(edges []data.Edge) []string {
	var keys []string
	for _, edge := range edges {
		keys = append(keys, edge.NodeKey())
	}
	return keys
}

func TestComposerInfiniteDedupe(t *testing.T) {
	gm, _, s := newTestSession()

	putTestPage(gm, "Query.todos({first:2})",
		map[string]interface{}{"first": 2},
		data.NewEdge("Todo:t1", "c1"), data.NewEdge("Todo:t2", "c2"))

	putTestPage(gm, "Query.todos({after:\"c2\",first:2})",
		map[string]interface{}{"after": "c2", "first": 2},
		data.NewEdge("Todo:t2", "c2"), data.NewEdge("Todo:t3", "c3"))

	c := s.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeCursor)

	if err := c.AddPage("Query.todos({first:2})"); err != nil {
		t.Error(err)
		return
	}
	if err := c.AddPage("Query.todos({after:\"c2\",first:2})"); err != nil {
		t.Error(err)
		return
	}

	// Overlapping pages compose without duplicates - first occurrence wins

	view := c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t1 Todo:t2 Todo:t3]" {
		t.Error("Unexpected result:", res)
		return
	}

	// Page info surfaces verbatim from the most recently added page

	if view.PageInfo["endCursor"] != "Query.todos({after:\"c2\",first:2})" {
		t.Error("Unexpected result:", view.PageInfo)
		return
	}

	// The composer is reused for repeated requests of the same identity

	if c2 := s.Composer("Query.todos({})", "", ""); c2 != c {
		t.Error("Unexpected result:", c2)
		return
	}

	if res := s.Identities(); fmt.Sprint(res) != "[Query.todos({})]" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestComposerBackwardPages(t *testing.T) {
	gm, _, s := newTestSession()

	putTestPage(gm, "Query.todos({first:2})",
		map[string]interface{}{"first": 2},
		data.NewEdge("Todo:t3", "c3"), data.NewEdge("Todo:t4", "c4"))

	putTestPage(gm, "Query.todos({before:\"c3\",last:2})",
		map[string]interface{}{"before": "c3", "last": 2},
		data.NewEdge("Todo:t1", "c1"), data.NewEdge("Todo:t2", "c2"))

	c := s.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeCursor)

	c.AddPage("Query.todos({first:2})")
	c.AddPage("Query.todos({before:\"c3\",last:2})")

	// A backward page prepends even though it was mounted later

	view := c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t1 Todo:t2 Todo:t3 Todo:t4]" {
		t.Error("Unexpected result:", res)
		return
	}

	c.RemovePage("Query.todos({before:\"c3\",last:2})")

	// Removing an unmounted page is a recoverable no-op

	c.RemovePage("Query.todos({before:\"c3\",last:2})")

	view = c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t3 Todo:t4]" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestComposerPageMode(t *testing.T) {
	gm, _, s := newTestSession()

	putTestPage(gm, "Query.todos({page:1})",
		map[string]interface{}{"page": 1},
		data.NewEdge("Todo:t1", "c1"), data.NewEdge("Todo:t2", "c2"))

	putTestPage(gm, "Query.todos({page:2})",
		map[string]interface{}{"page": 2},
		data.NewEdge("Todo:t3", "c3"), data.NewEdge("Todo:t4", "c4"))

	c := s.Composer("Query.todos({})", plan.ModePage, plan.DedupeCursor)

	c.AddPage("Query.todos({page:1})")
	c.AddPage("Query.todos({page:2})")

	// Without an active page the view is empty

	if view := c.View(); len(view.Edges) != 0 {
		t.Error("Unexpected result:", view.Edges)
		return
	}

	if err := c.SetActivePage("Query.todos({page:9})"); err == nil ||
		err.Error() != "CacheError: Unknown page record (Query.todos({page:9}))" {
		t.Error("Unexpected result:", err)
		return
	}

	c.SetActivePage("Query.todos({page:2})")

	view := c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t3 Todo:t4]" {
		t.Error("Unexpected result:", res)
		return
	}

	if view.PageInfo["endCursor"] != "Query.todos({page:2})" {
		t.Error("Unexpected result:", view.PageInfo)
		return
	}

	c.SetActivePage("Query.todos({page:1})")

	if res := edgeKeys(c.View().Edges); fmt.Sprint(res) != "[Todo:t1 Todo:t2]" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestComposerDedupeStrategies(t *testing.T) {
	gm, _, s := newTestSession()

	e1 := data.NewEdge("Todo:t1", "c1")
	e1["__id"] = "edge-1"
	e2 := data.NewEdge("Todo:t1", "c2")
	e2["__id"] = "edge-2"

	putTestPage(gm, "Query.todos({first:2})",
		map[string]interface{}{"first": 2}, e1)
	putTestPage(gm, "Query.todos({after:\"c1\",first:2})",
		map[string]interface{}{"after": "c1", "first": 2}, e2)

	// Node strategy - the same entity behind different cursors is a duplicate

	c := s.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeNode)
	c.AddPage("Query.todos({first:2})")
	c.AddPage("Query.todos({after:\"c1\",first:2})")

	if res := c.View().Edges; len(res) != 1 || res[0].Cursor() != "c1" {
		t.Error("Unexpected result:", res)
		return
	}

	// Edge ref strategy - distinct edge identities both survive

	s2 := NewSession(gm, layer.NewStack(gm, norm.NewResolver(nil, nil)))
	c = s2.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeEdgeRef)
	c.AddPage("Query.todos({first:2})")
	c.AddPage("Query.todos({after:\"c1\",first:2})")

	if res := c.View().Edges; len(res) != 2 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestComposerErrors(t *testing.T) {
	gm, _, s := newTestSession()

	c := s.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeCursor)

	if err := c.AddPage("Query.todos({first:2})"); err == nil ||
		err.Error() != "CacheError: Unknown page record (Query.todos({first:2}))" {
		t.Error("Unexpected result:", err)
		return
	}

	gm.PutPage(&graph.Page{
		Key:      "Query.projects({first:1})",
		Identity: "Query.projects({})",
		Field:    "projects",
		Parent:   "Query",
		Args:     map[string]interface{}{"first": 1},
	})

	if err := c.AddPage("Query.projects({first:1})"); err == nil ||
		err.Error() != "CacheError: Invalid data (Page Query.projects({first:1}) "+
			"belongs to connection Query.projects({}) not Query.todos({}))" {
		t.Error("Unexpected result:", err)
		return
	}

	s.Close()

	if res := s.Identities(); len(res) != 0 {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestComposerLayerEdits(t *testing.T) {
	gm, st, s := newTestSession()

	putTestPage(gm, "Query.todos({first:2})",
		map[string]interface{}{"first": 2},
		data.NewEdge("Todo:t1", "c1"), data.NewEdge("Todo:t2", "c2"))

	c := s.Composer("Query.todos({})", plan.ModeInfinite, plan.DedupeCursor)
	c.AddPage("Query.todos({first:2})")

	id := st.ModifyOptimistic(func(tx layer.Mutator) {
		conn := tx.Connection("Query.todos({})")
		conn.AddNode(map[string]interface{}{
			"__typename": "Todo",
			"id":         "t0",
		}, layer.PosStart)
		conn.RemoveNode("Todo:t2")
	})

	view := c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t0 Todo:t1]" {
		t.Error("Unexpected result:", res)
		return
	}

	st.Revert(id)

	view = c.View()

	if res := edgeKeys(view.Edges); fmt.Sprint(res) != "[Todo:t1 Todo:t2]" {
		t.Error("Unexpected result:", res)
		return
	}
}
