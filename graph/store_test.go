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
	"bytes"
	"fmt"
	"strings"
	"testing"

	"devt.de/krotik/common/testutil"
	"devt.de/krotik/graphcache/graph/data"
)

func TestStoreRecords(t *testing.T) {
	s := NewStore()

	var events []string

	s.Events().AddObserver(EventRecordStored, nil,
		func(event string, eventSource interface{}) {
			events = append(events, fmt.Sprint("stored ", eventSource))
		})
	s.Events().AddObserver(EventRecordDeleted, nil,
		func(event string, eventSource interface{}) {
			events = append(events, fmt.Sprint("deleted ", eventSource))
		})

	s.PutRecord("Todo:t1", map[string]interface{}{
		data.RecordTypename: "Todo",
		"text":              "First",
		"done":              false,
	})

	// Writes merge per field - untouched fields survive

	s.PutRecord("Todo:t1", map[string]interface{}{"done": true})

	rec := s.GetRecord("Todo:t1")

	if rec.Key() != "Todo:t1" || rec.Typename() != "Todo" ||
		rec.Attr("text") != "First" || rec.Attr("done") != true {
		t.Error("Unexpected result:", rec)
		return
	}

	// A nil value removes the field

	s.PutRecord("Todo:t1", map[string]interface{}{"text": nil})

	if res := s.GetRecord("Todo:t1").Attr("text"); res != nil {
		t.Error("Unexpected result:", res)
		return
	}

	// Returned records are copies - modifying them must not affect the store

	s.GetRecord("Todo:t1").SetAttr("done", false)

	if res := s.GetRecord("Todo:t1").Attr("done"); res != true {
		t.Error("Unexpected result:", res)
		return
	}

	if !s.HasRecord("Todo:t1") || s.HasRecord("Todo:t2") {
		t.Error("Unexpected result")
		return
	}

	s.DeleteRecord("Todo:t1")

	if s.GetRecord("Todo:t1") != nil || s.HasRecord("Todo:t1") {
		t.Error("Unexpected result")
		return
	}

	// Deleting an absent record posts no event

	s.DeleteRecord("Todo:t1")

	if res := fmt.Sprint(events); res !=
		"[stored Todo:t1 stored Todo:t1 stored Todo:t1 deleted Todo:t1]" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestStorePages(t *testing.T) {
	s := NewStore()

	page := func(key string, identity string, nodes ...string) *Page {
		edges := make([]data.Edge, 0, len(nodes))
		for i, n := range nodes {
			edges = append(edges, data.NewEdge(n, fmt.Sprint("c", i)))
		}

		return &Page{
			Key:      key,
			Identity: identity,
			Field:    "todos",
			Parent:   "Query",
			Args:     map[string]interface{}{},
			Edges:    edges,
			PageInfo: map[string]interface{}{"endCursor": "c1"},
		}
	}

	s.PutPage(page("Query.todos({first:2})", "Query.todos({})", "Todo:t1", "Todo:t2"))
	s.PutPage(page(`Query.todos({after:"c1",first:2})`, "Query.todos({})", "Todo:t3"))
	s.PutPage(page(`Query.todos({filter:"done"})`, `Query.todos({filter:"done"})`, "Todo:t2"))

	if res := fmt.Sprint(s.PagesForIdentity("Query.todos({})")); res !=
		`[Query.todos({after:"c1",first:2}) Query.todos({first:2})]` {
		t.Error("Unexpected result:", res)
		return
	}

	// Refetching a page overwrites it wholesale

	s.PutPage(page("Query.todos({first:2})", "Query.todos({})", "Todo:t9"))

	p := s.GetPage("Query.todos({first:2})")

	if len(p.Edges) != 1 || p.Edges[0].NodeKey() != "Todo:t9" {
		t.Error("Unexpected result:", p)
		return
	}

	// Returned pages are copies

	p.Edges[0]["cursor"] = "changed"
	p.PageInfo["endCursor"] = "changed"

	p2 := s.GetPage("Query.todos({first:2})")

	if p2.Edges[0].Cursor() != "c0" || p2.PageInfo["endCursor"] != "c1" {
		t.Error("Unexpected result:", p2)
		return
	}

	if !s.HasPage("Query.todos({first:2})") || s.HasPage("Query.todos({first:99})") {
		t.Error("Unexpected result")
		return
	}

	// Deleting the last page of an identity removes the identity group

	s.DeletePage(`Query.todos({filter:"done"})`)

	if res := s.PagesForIdentity(`Query.todos({filter:"done"})`); len(res) != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	if res := fmt.Sprint(s.PageKeys()); res !=
		`[Query.todos({after:"c1",first:2}) Query.todos({first:2})]` {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestPageDirection(t *testing.T) {

	page := func(args map[string]interface{}) *Page {
		return &Page{Args: args}
	}

	if page(map[string]interface{}{"first": 2}).IsBackward() {
		t.Error("Unexpected result")
		return
	}

	if !page(map[string]interface{}{"before": "c5", "last": 2}).IsBackward() {
		t.Error("Unexpected result")
		return
	}

	if !page(map[string]interface{}{"last": 2}).IsBackward() {
		t.Error("Unexpected result")
		return
	}

	if page(map[string]interface{}{"last": 2, "first": 2}).IsBackward() {
		t.Error("Unexpected result")
		return
	}

	if page(map[string]interface{}{"last": 2, "after": "c1"}).IsBackward() {
		t.Error("Unexpected result")
		return
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore()

	s.PutRecord("User:u1", map[string]interface{}{
		data.RecordTypename: "User",
		"name":              "Ann",
		"bestFriend":        data.NewRef("User:u2"),
		"friends":           []interface{}{data.NewRef("User:u2")},
	})
	s.PutRecord("User:u2", map[string]interface{}{
		data.RecordTypename: "User",
		"name":              "Bob",
	})

	s.PutPage(&Page{
		Key:      "Query.users({first:1})",
		Identity: "Query.users({})",
		Field:    "users",
		Parent:   "Query",
		Args:     map[string]interface{}{"first": 1},
		Edges:    []data.Edge{data.NewEdge("User:u1", "c1")},
		PageInfo: map[string]interface{}{"endCursor": "c1"},
	})

	var buf bytes.Buffer

	if err := ExportStore(&buf, s); err != nil {
		t.Error(err)
		return
	}

	if !strings.Contains(buf.String(), `"version": 1`) {
		t.Error("Unexpected result:", buf.String())
		return
	}

	s2 := NewStore()

	if err := ImportStore(bytes.NewReader(buf.Bytes()), s2); err != nil {
		t.Error(err)
		return
	}

	// Link values must be revived as Ref values

	rec := s2.GetRecord("User:u1")

	if res, ok := rec.Attr("bestFriend").(data.Ref); !ok || res.Key != "User:u2" {
		t.Error("Unexpected result:", rec.Attr("bestFriend"))
		return
	}

	list, ok := rec.Attr("friends").([]interface{})

	if !ok || len(list) != 1 {
		t.Error("Unexpected result:", rec.Attr("friends"))
		return
	}

	if res, ok := list[0].(data.Ref); !ok || res.Key != "User:u2" {
		t.Error("Unexpected result:", list[0])
		return
	}

	// Record and page content must survive the round-trip

	for _, key := range s.Keys() {
		if s.GetRecord(key).String() != s2.GetRecord(key).String() {
			t.Error("Unexpected result:", s2.GetRecord(key))
			return
		}
	}

	page := s2.GetPage("Query.users({first:1})")

	if page == nil || page.Identity != "Query.users({})" ||
		page.Edges[0].NodeKey() != "User:u1" || page.Edges[0].Cursor() != "c1" {
		t.Error("Unexpected result:", page)
		return
	}

	if res := s2.PagesForIdentity("Query.users({})"); len(res) != 1 {
		t.Error("Unexpected result:", res)
		return
	}

	// Corrupted input is reported as a reading error

	err := ImportStore(strings.NewReader("{broken"), NewStore())

	if err == nil || !strings.HasPrefix(err.Error(), "CacheError: Could not read") {
		t.Error("Unexpected result:", err)
		return
	}

	// A failing writer is reported as a writing error

	err = ExportStore(&testutil.ErrorTestingBuffer{RemainingSize: 10}, s)

	if err == nil || !strings.HasPrefix(err.Error(), "CacheError: Could not write") {
		t.Error("Unexpected result:", err)
		return
	}
}
