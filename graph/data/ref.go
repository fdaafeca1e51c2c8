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
	"fmt"
)

/*
RefField is the field under which a link value stores its target key.
*/
const RefField = "__ref"

/*
EdgeIDField is the field under which an edge may store its own identity.
*/
const EdgeIDField = "__id"

/*
EdgeCursorField is the field under which an edge stores its cursor.
*/
const EdgeCursorField = "cursor"

/*
Ref is a link value pointing from one record to another record by key.
*/
type Ref struct {
	Key string // Entity key of the referenced record
}

/*
NewRef creates a new link value for a given entity key.
*/
func NewRef(key string) Ref {
	return Ref{key}
}

/*
MarshalJSON serializes this link value into its wire representation.
*/
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{RefField: r.Key})
}

/*
String returns a string representation of this link value.
*/
func (r Ref) String() string {
	return fmt.Sprintf("Ref(%s)", r.Key)
}

/*
RefKey extracts the entity key from a stored link value. The value may be a
Ref object or its decoded wire representation. Returns the key and a flag
if the value was indeed a link value.
*/
func RefKey(val interface{}) (string, bool) {

	if ref, ok := val.(Ref); ok {
		return ref.Key, true
	}

	if m, ok := val.(map[string]interface{}); ok {
		if key, ok := m[RefField]; ok && len(m) == 1 {
			return fmt.Sprint(key), true
		}
	}

	return "", false
}

// Edges
// =====

/*
Edge models one entry of a page record. Edges are plain field maps which hold
at least a link value under RefField and usually a cursor. Additional fields
are edge metadata.
*/
type Edge map[string]interface{}

/*
NewEdge creates a new edge for a given entity key and cursor.
*/
func NewEdge(key string, cursor string) Edge {
	edge := Edge{RefField: NewRef(key)}

	if cursor != "" {
		edge[EdgeCursorField] = cursor
	}

	return edge
}

/*
NodeKey returns the entity key of the record this edge points to.
*/
func (e Edge) NodeKey() string {
	key, _ := RefKey(e[RefField])
	return key
}

/*
Cursor returns the cursor of this edge or an empty string.
*/
func (e Edge) Cursor() string {
	if c, ok := e[EdgeCursorField]; ok {
		return fmt.Sprint(c)
	}
	return ""
}

/*
ID returns the independent identity of this edge or an empty string if the
edge carries no identity of its own.
*/
func (e Edge) ID() string {
	if id, ok := e[EdgeIDField]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

/*
Copy returns a shallow copy of this edge.
*/
func (e Edge) Copy() Edge {
	res := make(Edge, len(e))

	for k, v := range e {
		res[k] = v
	}

	return res
}

/*
Merge merges the fields of a given map into this edge. Existing fields are
overwritten.
*/
func (e Edge) Merge(fields map[string]interface{}) {
	for k, v := range fields {
		e[k] = v
	}
}

/*
MergePageInfo merges a given pageInfo map field-by-field into an existing
pageInfo map. The destination map is modified; it is never wholesale-replaced.
*/
func MergePageInfo(dst map[string]interface{}, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{})
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}
