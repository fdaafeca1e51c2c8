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
Package layer contains the optimistic layer stack of the cache.

A layer is one optimistic transaction. Creating a layer runs its builder
once against a recording mutator (phase "optimistic") - nothing is written
to the store, the recorded operations become immediately visible through
the stack's resolution functions. Committing a layer re-runs the builder
against a writing mutator (phase "commit") which writes directly into the
store, then drops the layer. Reverting removes the layer without writing
anything permanent.

Resolution is a full recompute: reading an entity through the stack starts
from the store snapshot and applies every active layer's patches in stack
order. This is deliberately not an incremental diff - a full recompute is
correct regardless of how layers interacted.

The state machine of a layer is

	created -> applied -> (committed | reverted)

committed and reverted are terminal - a layer cannot be reapplied.
*/
package layer

import (
	"fmt"

	"devt.de/krotik/graphcache/graph/data"
)

/*
State of a layer
*/
type State int

/*
All layer states
*/
const (
	StateCreated State = iota
	StateApplied
	StateCommitted
	StateReverted
)

/*
Phase under which a layer builder runs
*/
type Phase string

/*
All builder phases
*/
const (
	PhaseOptimistic Phase = "optimistic"
	PhaseCommit     Phase = "commit"
)

/*
Patch modes for entity patches
*/
const (
	PatchMerge   = "merge"
	PatchReplace = "replace"
	PatchDelete  = "delete"
)

/*
entityPatch is one recorded entity operation of a layer.
*/
type entityPatch struct {
	mode   string                 // PatchMerge, PatchReplace or PatchDelete
	fields map[string]interface{} // Fields to apply (nil for delete markers)
}

/*
Connection edit operations
*/
const (
	EditAddNode    = "addNode"
	EditRemoveNode = "removeNode"
	EditPatch      = "patch"
)

/*
Positions for added nodes
*/
const (
	PosStart = "start"
	PosEnd   = "end"
)

/*
connEdit is one recorded connection operation of a layer.
*/
type connEdit struct {
	op    string                 // EditAddNode, EditRemoveNode or EditPatch
	key   string                 // Entity key of the node (add / remove)
	edge  data.Edge              // Synthetic edge (add)
	pos   string                 // PosStart or PosEnd (add)
	patch map[string]interface{} // Connection metadata patch (patch)
}

/*
Builder records the operations of a layer. It is run once on layer creation
with phase "optimistic" and once more on commit with phase "commit" and the
server payload.
*/
type Builder func(tx Mutator)

/*
Layer is one optimistic transaction of the stack.
*/
type Layer struct {
	id        string                 // Unique layer ID
	state     State                  // Current state of the layer
	builder   Builder                // Builder which produced this layer
	patches   map[string]entityPatch // Entity patches by entity key
	patchLog  []string               // Entity keys in patch order
	connEdits map[string][]*connEdit // Connection edits by identity key
	connLog   []string               // Identity keys in edit order
}

/*
newLayer creates a new Layer instance.
*/
func newLayer(id string, builder Builder) *Layer {
	return &Layer{
		id:        id,
		state:     StateCreated,
		builder:   builder,
		patches:   make(map[string]entityPatch),
		connEdits: make(map[string][]*connEdit),
	}
}

/*
ID returns the unique ID of this layer.
*/
func (l *Layer) ID() string {
	return l.id
}

/*
State returns the current state of this layer.
*/
func (l *Layer) State() State {
	return l.state
}

/*
TouchedKeys returns all entity keys touched by this layer.
*/
func (l *Layer) TouchedKeys() []string {
	return append(l.patchLog[:0:0], l.patchLog...)
}

/*
TouchedIdentities returns all connection identities touched by this layer.
*/
func (l *Layer) TouchedIdentities() []string {
	return append(l.connLog[:0:0], l.connLog...)
}

/*
String returns a string representation of this layer.
*/
func (l *Layer) String() string {
	return fmt.Sprintf("Layer %v (state=%v patches=%v connections=%v)",
		l.id, l.state, len(l.patches), len(l.connEdits))
}

/*
recordPatch records an entity patch. Merge patches onto an existing merge
patch combine; a replace or delete patch supersedes what came before it
within this layer.
*/
func (l *Layer) recordPatch(key string, mode string, fields map[string]interface{}) {
	prev, ok := l.patches[key]

	if !ok {
		l.patchLog = append(l.patchLog, key)
	}

	if ok && mode == PatchMerge && prev.mode != PatchDelete {

		// Combine with the previous patch of this layer

		combined := make(map[string]interface{}, len(prev.fields)+len(fields))

		for k, v := range prev.fields {
			combined[k] = v
		}
		for k, v := range fields {
			combined[k] = v
		}

		l.patches[key] = entityPatch{prev.mode, combined}

		return
	}

	l.patches[key] = entityPatch{mode, fields}
}

/*
recordConnEdit records a connection edit.
*/
func (l *Layer) recordConnEdit(identity string, edit *connEdit) {
	if _, ok := l.connEdits[identity]; !ok {
		l.connLog = append(l.connLog, identity)
	}

	l.connEdits[identity] = append(l.connEdits[identity], edit)
}

/*
applyToRecord applies this layer's patch for a given key to a resolved
record. Returns the patched record (nil if a delete marker applies).
*/
func (l *Layer) applyToRecord(key string, rec data.Record) data.Record {
	patch, ok := l.patches[key]

	if !ok {
		return rec
	}

	switch patch.mode {

	case PatchDelete:
		return nil

	case PatchReplace:
		res := data.NewRecord()
		res.SetAttr(data.RecordKey, key)

		for k, v := range patch.fields {
			res.SetAttr(k, v)
		}

		return res
	}

	// Merge patch - a merge onto a missing record creates it

	if rec == nil {
		rec = data.NewRecord()
		rec.SetAttr(data.RecordKey, key)
	}

	for k, v := range patch.fields {
		rec.SetAttr(k, v)
	}

	return rec
}

/*
applyToEdges applies this layer's connection edits for a given identity to
a composed edge list. Returns the edited edges, page info and metadata.
*/
func (l *Layer) applyToEdges(identity string, edges []data.Edge,
	pageInfo map[string]interface{}, meta map[string]interface{}) ([]data.Edge,
	map[string]interface{}, map[string]interface{}) {

	for _, edit := range l.connEdits[identity] {

		switch edit.op {

		case EditAddNode:

			// Re-adding an existing node updates its edge metadata in
			// place without changing its position

			existing := -1
			for i, edge := range edges {
				if edge.NodeKey() == edit.key {
					existing = i
					break
				}
			}

			if existing != -1 {
				merged := edges[existing].Copy()
				merged.Merge(edit.edge)
				edges[existing] = merged

			} else if edit.pos == PosStart {
				edges = append([]data.Edge{edit.edge.Copy()}, edges...)

			} else {
				edges = append(edges, edit.edge.Copy())
			}

		case EditRemoveNode:

			// Remove the first matching edge from the effective list

			for i, edge := range edges {
				if edge.NodeKey() == edit.key {
					edges = append(edges[:i], edges[i+1:]...)
					break
				}
			}

		case EditPatch:

			for k, v := range edit.patch {

				if k == "pageInfo" {

					// Page info is merged field-by-field, never replaced

					if pi, ok := v.(map[string]interface{}); ok {
						pageInfo = data.MergePageInfo(pageInfo, pi)
					}

				} else {
					meta[k] = v
				}
			}
		}
	}

	return edges, pageInfo, meta
}
