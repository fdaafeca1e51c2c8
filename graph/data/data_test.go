/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"encoding/json"
	"testing"
)

func TestRecord(t *testing.T) {
	rec := NewRecord()

	rec.SetAttr(RecordKey, "User:u1")
	rec.SetAttr(RecordTypename, "User")
	rec.SetAttr("name", "Ann")
	rec.SetAttr("age", 42)

	if rec.Key() != "User:u1" || rec.Typename() != "User" {
		t.Error("Unexpected result:", rec)
		return
	}

	if rec.Attr("name") != "Ann" || rec.Attr("missing") != nil {
		t.Error("Unexpected result:", rec)
		return
	}

	// Setting nil removes the field

	rec.SetAttr("age", nil)

	if _, ok := rec.Fields()["age"]; ok {
		t.Error("Unexpected result:", rec.Fields())
		return
	}

	// Copies are independent

	c := rec.Copy()
	c.SetAttr("name", "Bob")

	if rec.Attr("name") != "Ann" || c.Attr("name") != "Bob" {
		t.Error("Unexpected result:", rec, c)
		return
	}

	if res := rec.String(); res != `CacheRecord:
           key : User:u1
    __typename : User
          name : Ann
` {
		t.Error("Unexpected result:", res)
		return
	}

	rec2 := NewRecordFromMap(map[string]interface{}{RecordKey: "X:1"})

	if rec2.Key() != "X:1" || rec2.Typename() != "" {
		t.Error("Unexpected result:", rec2)
		return
	}
}

func TestRefs(t *testing.T) {
	ref := NewRef("User:u1")

	if ref.String() != "Ref(User:u1)" {
		t.Error("Unexpected result:", ref)
		return
	}

	res, err := json.Marshal(ref)

	if err != nil || string(res) != `{"__ref":"User:u1"}` {
		t.Error("Unexpected result:", string(res), err)
		return
	}

	// RefKey accepts both Ref values and their decoded wire representation

	if key, ok := RefKey(ref); !ok || key != "User:u1" {
		t.Error("Unexpected result:", key)
		return
	}

	if key, ok := RefKey(map[string]interface{}{RefField: "User:u2"}); !ok || key != "User:u2" {
		t.Error("Unexpected result:", key)
		return
	}

	// Maps with additional fields are not link values

	if _, ok := RefKey(map[string]interface{}{RefField: "User:u2", "x": 1}); ok {
		t.Error("Unexpected result")
		return
	}

	if _, ok := RefKey("User:u1"); ok {
		t.Error("Unexpected result")
		return
	}
}

func TestEdges(t *testing.T) {
	edge := NewEdge("Todo:t1", "c1")

	if edge.NodeKey() != "Todo:t1" || edge.Cursor() != "c1" || edge.ID() != "" {
		t.Error("Unexpected result:", edge)
		return
	}

	edge.Merge(map[string]interface{}{EdgeIDField: "e1", "highlight": true})

	if edge.ID() != "e1" || edge["highlight"] != true {
		t.Error("Unexpected result:", edge)
		return
	}

	c := edge.Copy()
	c["highlight"] = false

	if edge["highlight"] != true || c["highlight"] != false {
		t.Error("Unexpected result:", edge, c)
		return
	}

	// Edges without a cursor have an empty cursor

	if res := NewEdge("Todo:t2", "").Cursor(); res != "" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestMergePageInfo(t *testing.T) {
	dst := MergePageInfo(nil, map[string]interface{}{"endCursor": "c1"})

	dst = MergePageInfo(dst, map[string]interface{}{
		"endCursor":   "c2",
		"hasNextPage": false,
	})

	if dst["endCursor"] != "c2" || dst["hasNextPage"] != false || len(dst) != 2 {
		t.Error("Unexpected result:", dst)
		return
	}
}
