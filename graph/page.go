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
	"fmt"

	"devt.de/krotik/graphcache/graph/data"
)

/*
Page represents one concrete fetch of a connection field. A page record is
keyed by the full argument set of the fetch including pagination cursors;
its identity key excludes pagination arguments and groups all pages which
belong to the same logical list.
*/
type Page struct {
	Key      string                 // Page key (full argument set)
	Identity string                 // Connection identity key (identity arguments only)
	Field    string                 // Alias-qualified field name
	Parent   string                 // Parent record key
	Args     map[string]interface{} // Arguments which produced this page
	Edges    []data.Edge            // Ordered edges of this page
	PageInfo map[string]interface{} // Page info object of this fetch
}

/*
Copy returns a copy of this page. Edges and page info are copied so that
callers can modify the result without affecting the stored page.
*/
func (p *Page) Copy() *Page {
	res := &Page{
		Key:      p.Key,
		Identity: p.Identity,
		Field:    p.Field,
		Parent:   p.Parent,
		Args:     p.Args,
		Edges:    make([]data.Edge, 0, len(p.Edges)),
		PageInfo: make(map[string]interface{}, len(p.PageInfo)),
	}

	for _, edge := range p.Edges {
		res.Edges = append(res.Edges, edge.Copy())
	}

	for k, v := range p.PageInfo {
		res.PageInfo[k] = v
	}

	return res
}

/*
IsBackward returns if this page was requested through backward pagination
arguments. Backward pages are prepended when composing a connection view.
*/
func (p *Page) IsBackward() bool {

	if _, ok := p.Args["before"]; ok {
		return true
	}

	_, hasLast := p.Args["last"]
	_, hasFirst := p.Args["first"]
	_, hasAfter := p.Args["after"]

	return hasLast && !hasFirst && !hasAfter
}

/*
String returns a string representation of this page.
*/
func (p *Page) String() string {
	return fmt.Sprintf("Page %v (identity=%v edges=%v)", p.Key, p.Identity, len(p.Edges))
}
