/*
 * GraphCache
 *
 * Copyright 2020 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package plan

import (
	"fmt"
	"strconv"

	"devt.de/krotik/common/lang/graphql/parser"
	"devt.de/krotik/common/stringutil"
)

/*
FieldKind is the kind of a compiled selection field
*/
type FieldKind int

/*
All known field kinds. A field is a connection only if it was explicitly
annotated - there is no heuristic inference from the response shape.
*/
const (
	Scalar FieldKind = iota
	Link
	Connection
)

/*
Composition modes for connection fields
*/
const (
	ModeInfinite = "infinite"
	ModePage     = "page"
)

/*
Dedupe strategies for connection fields
*/
const (
	DedupeCursor  = "cursor"
	DedupeNode    = "node"
	DedupeEdgeRef = "edgeRef"
)

/*
PaginationArguments contains the recognized pagination argument names. These
arguments never contribute to a connection identity.
*/
var PaginationArguments = []string{"first", "last", "before", "after", "offset", "page"}

/*
DefaultMode is the composition mode of connection fields whose annotation
does not specify one.
*/
var DefaultMode = ModeInfinite

/*
DefaultDedupe is the dedupe strategy of connection fields whose annotation
does not specify one.
*/
var DefaultDedupe = DedupeCursor

/*
argNode is a compiled argument expression of a field or directive.
*/
type argNode struct {
	name  string          // Argument name
	value *parser.ASTNode // Value expression (may reference variables)
}

/*
directiveUse is a compiled directive usage on a field.
*/
type directiveUse struct {
	name string    // Directive name
	args []argNode // Directive arguments
}

/*
PlanField is the compiled, static description of one selection of a plan.
PlanFields are immutable once compiled.
*/
type PlanField struct {
	name           string          // Field name
	alias          string          // Field alias (equals name if not aliased)
	onType         string          // Type condition inherited from fragments ("" matches all)
	kind           FieldKind       // Scalar, Link or Connection
	args           []argNode       // Compiled argument expressions
	directives     []*directiveUse // Compiled directive usages
	connectionArgs []string        // Identity argument subset (nil defaults to all non-pagination arguments)
	mode           string          // Default composition mode for connections
	dedupe         string          // Dedupe strategy for connections
	children       []*PlanField    // Nested selection
}

/*
Name returns the field name of this selection.
*/
func (f *PlanField) Name() string {
	return f.name
}

/*
Alias returns the alias of this selection.
*/
func (f *PlanField) Alias() string {
	return f.alias
}

/*
QualifiedName returns the alias-qualified field name. The alias is part of
the name so that two sibling connections which differ only by alias produce
distinct identities.
*/
func (f *PlanField) QualifiedName() string {
	if f.alias != f.name {
		return f.alias + ":" + f.name
	}

	return f.name
}

/*
OnType returns the type condition of this selection or an empty string if
the selection applies to all types.
*/
func (f *PlanField) OnType() string {
	return f.onType
}

/*
Kind returns the field kind of this selection.
*/
func (f *PlanField) Kind() FieldKind {
	return f.kind
}

/*
IsConnection returns if this selection was annotated as a connection.
*/
func (f *PlanField) IsConnection() bool {
	return f.kind == Connection
}

/*
Mode returns the default composition mode of this connection field.
*/
func (f *PlanField) Mode() string {
	return f.mode
}

/*
Dedupe returns the dedupe strategy of this connection field.
*/
func (f *PlanField) Dedupe() string {
	return f.dedupe
}

/*
Children returns the nested selection of this field.
*/
func (f *PlanField) Children() []*PlanField {
	return f.children
}

/*
Child looks up a nested selection by its alias.
*/
func (f *PlanField) Child(alias string) *PlanField {
	for _, c := range f.children {
		if c.alias == alias {
			return c
		}
	}

	return nil
}

/*
BuildArgs builds the argument map of this field for given variable values.
Arguments whose value resolves to nil (e.g. unbound variables) are omitted -
an absent argument and an unbound argument produce the same key.
*/
func (f *PlanField) BuildArgs(vars map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{})

	for _, a := range f.args {
		if val := valueOf(a.value, vars); val != nil {
			res[a.name] = val
		}
	}

	return res
}

/*
IdentityArgs filters a built argument map down to the arguments which
contribute to the connection identity. If no explicit subset was annotated
all non-pagination arguments are used.
*/
func (f *PlanField) IdentityArgs(args map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{})

	if f.connectionArgs != nil {

		for _, name := range f.connectionArgs {
			if val, ok := args[name]; ok {
				res[name] = val
			}
		}

	} else {

		for name, val := range args {
			if stringutil.IndexOf(name, PaginationArguments) == -1 {
				res[name] = val
			}
		}
	}

	return res
}

/*
FieldKey returns the key under which this selection is stored on its parent
record. Fields without arguments are stored under their plain name.
*/
func (f *PlanField) FieldKey(vars map[string]interface{}) string {
	if len(f.args) == 0 {
		return f.name
	}

	return fmt.Sprintf("%s(%s)", f.name, StringifyArgs(f.BuildArgs(vars)))
}

/*
PageKey returns the page record key of this connection field for a given
parent record key and variable values. Distinct pagination arguments always
produce distinct page keys.
*/
func (f *PlanField) PageKey(parentKey string, vars map[string]interface{}) string {
	return fmt.Sprintf("%s.%s(%s)", parentKey, f.QualifiedName(),
		StringifyArgs(f.BuildArgs(vars)))
}

/*
IdentityKey returns the connection identity key of this connection field for
a given parent record key and variable values. Page records which share an
identity key belong to the same logical list.
*/
func (f *PlanField) IdentityKey(parentKey string, vars map[string]interface{}) string {
	return fmt.Sprintf("%s.%s(%s)", parentKey, f.QualifiedName(),
		StringifyArgs(f.IdentityArgs(f.BuildArgs(vars))))
}

/*
Skip evaluates skip and include directives of this field against given
variable values. Returns true if the field should be excluded.
*/
func (f *PlanField) Skip(vars map[string]interface{}) bool {

	for _, d := range f.directives {

		if d.name == "skip" || d.name == "include" {

			for _, a := range d.args {

				if a.name == "if" {
					cond, _ := strconv.ParseBool(fmt.Sprint(valueOf(a.value, vars)))

					if d.name == "skip" {
						return cond
					}

					return !cond
				}
			}
		}
	}

	return false
}

/*
directive looks up a directive usage by name.
*/
func (f *PlanField) directive(name string) *directiveUse {
	for _, d := range f.directives {
		if d.name == name {
			return d
		}
	}

	return nil
}

/*
connectionSignature returns a comparable representation of the connection
annotation of this field. Used to detect conflicting annotations for the
same field across a document.
*/
func (f *PlanField) connectionSignature() string {
	return fmt.Sprintf("%v|%v|%v|%v", f.kind == Connection, f.connectionArgs,
		f.mode, f.dedupe)
}
