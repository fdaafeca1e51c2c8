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

	"devt.de/krotik/common/logutil"
	"devt.de/krotik/common/stringutil"
	"devt.de/krotik/graphcache/graph"
	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/graph/util"
	"devt.de/krotik/graphcache/layer"
	"devt.de/krotik/graphcache/plan"
)

/*
Composer composes the page records of one connection identity into a single
view. Composition is strictly read-time: the composer reads page records
from the store and applies the edits of the layer stack but never mutates
either. Pages are mounted in request order - pages produced by backward
pagination arguments prepend, all others append.
*/
type Composer struct {
	gm        *graph.Store   // Store holding the page records
	stack     *layer.Stack   // Layer stack for optimistic edits
	identity  string         // Connection identity this composer serves
	mode      string         // Composition mode (infinite or page)
	dedupe    string         // Dedupe strategy (cursor, node or edgeRef)
	mounted   []string       // Mounted page keys in composition order
	lastAdded string         // Most recently mounted page key
	active    string         // Active page key (page mode)
	log       logutil.Logger // Logger for absorbed conditions
}

/*
ConnView is one composed connection view.
*/
type ConnView struct {
	Identity string                 // Connection identity of the view
	Edges    []data.Edge            // Composed and deduplicated edges
	PageInfo map[string]interface{} // Page info of the governing page
	Meta     map[string]interface{} // Connection metadata from layer edits
}

/*
NewComposer creates a new composer for a connection identity.
*/
func NewComposer(gm *graph.Store, stack *layer.Stack, identity string,
	mode string, dedupe string) *Composer {

	if mode != plan.ModePage {
		mode = plan.ModeInfinite
	}
	if dedupe != plan.DedupeNode && dedupe != plan.DedupeEdgeRef {
		dedupe = plan.DedupeCursor
	}

	return &Composer{
		gm:       gm,
		stack:    stack,
		identity: identity,
		mode:     mode,
		dedupe:   dedupe,
		log:      logutil.GetLogger("graphcache.session"),
	}
}

/*
Identity returns the connection identity of this composer.
*/
func (c *Composer) Identity() string {
	return c.identity
}

/*
Mode returns the composition mode of this composer.
*/
func (c *Composer) Mode() string {
	return c.mode
}

/*
Pages returns the mounted page keys in composition order.
*/
func (c *Composer) Pages() []string {
	return append(c.mounted[:0:0], c.mounted...)
}

/*
AddPage mounts a page record into this composer's view. Pages fetched with
backward pagination arguments are prepended, all others appended. Mounting
an already mounted page only marks it as the most recent fetch.
*/
func (c *Composer) AddPage(pageKey string) error {
	page := c.gm.GetPage(pageKey)

	if page == nil {
		return &util.CacheError{Type: util.ErrUnknownPage, Detail: pageKey}
	}

	if page.Identity != c.identity {
		return &util.CacheError{
			Type: util.ErrInvalidData,
			Detail: fmt.Sprintf("Page %v belongs to connection %v not %v",
				pageKey, page.Identity, c.identity),
		}
	}

	if stringutil.IndexOf(pageKey, c.mounted) == -1 {

		if page.IsBackward() {
			c.mounted = append([]string{pageKey}, c.mounted...)
		} else {
			c.mounted = append(c.mounted, pageKey)
		}
	}

	c.lastAdded = pageKey

	return nil
}

/*
RemovePage unmounts a page from this composer's view. The underlying page
record is not deleted. Removing a page which is not mounted is a
recoverable no-op.
*/
func (c *Composer) RemovePage(pageKey string) {
	i := stringutil.IndexOf(pageKey, c.mounted)

	if i == -1 {
		c.log.Warning("Removing unmounted page ", pageKey, " was skipped")
		return
	}

	c.mounted = append(c.mounted[:i], c.mounted[i+1:]...)

	if c.active == pageKey {
		c.active = ""
	}
	if c.lastAdded == pageKey {
		c.lastAdded = ""
		if len(c.mounted) > 0 {
			c.lastAdded = c.mounted[len(c.mounted)-1]
		}
	}
}

/*
SetActivePage selects the page whose edges a page mode view exposes. An
empty key clears the selection.
*/
func (c *Composer) SetActivePage(pageKey string) error {

	if pageKey != "" && stringutil.IndexOf(pageKey, c.mounted) == -1 {
		return &util.CacheError{Type: util.ErrUnknownPage, Detail: pageKey}
	}

	c.active = pageKey

	return nil
}

/*
View composes the current connection view. In infinite mode the edges of
all mounted pages are concatenated in composition order and deduplicated
keeping the first occurrence; in page mode only the active page's edges are
exposed. Page info surfaces verbatim from the most recently added page
(infinite) or the active page (page mode). The edits of the layer stack
are applied on the composed list.
*/
func (c *Composer) View() *ConnView {
	var edges []data.Edge
	var pageInfo map[string]interface{}

	govern := c.lastAdded
	if c.mode == plan.ModePage {
		govern = c.active
	}

	if c.mode == plan.ModePage {

		if c.active != "" {
			if page := c.gm.GetPage(c.active); page != nil {
				edges = page.Edges
			}
		}

	} else {

		seen := make(map[string]string)

		for _, pageKey := range c.mounted {
			page := c.gm.GetPage(pageKey)

			if page == nil {
				c.log.Warning("Mounted page ", pageKey, " is gone from the store")
				continue
			}

			for _, edge := range page.Edges {
				key := c.dedupeKey(edge)

				if key != "" {
					if _, ok := seen[key]; ok {
						continue
					}
					seen[key] = pageKey
				}

				edges = append(edges, edge)
			}
		}
	}

	if govern != "" {
		if page := c.gm.GetPage(govern); page != nil {
			pageInfo = page.PageInfo
		}
	}

	if pageInfo == nil {
		pageInfo = make(map[string]interface{})
	}

	edges, pageInfo, meta := c.stack.ResolveConnection(c.identity, edges, pageInfo)

	return &ConnView{
		Identity: c.identity,
		Edges:    edges,
		PageInfo: pageInfo,
		Meta:     meta,
	}
}

/*
dedupeKey returns the duplicate detection key of an edge according to the
configured strategy. Edges without a usable key are never deduplicated.
*/
func (c *Composer) dedupeKey(edge data.Edge) string {

	switch c.dedupe {

	case plan.DedupeNode:
		return edge.NodeKey()

	case plan.DedupeEdgeRef:
		if id := edge.ID(); id != "" {
			return id
		}
		return edge.NodeKey()
	}

	// Default cursor strategy - edges without a cursor fall back to
	// their node identity

	if cursor := edge.Cursor(); cursor != "" {
		return cursor
	}

	return edge.NodeKey()
}
