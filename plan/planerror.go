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
	"errors"
	"fmt"

	"devt.de/krotik/common/lang/graphql/parser"
)

/*
Error is a plan compilation related error
*/
type Error struct {
	Source string // Name of the source which was given to the compiler
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
	Line   int    // Line of the error
	Pos    int    // Position of the error
}

/*
Error returns a human-readable string representation of this error.
*/
func (pe *Error) Error() string {
	ret := fmt.Sprintf("Plan error in %s: %v (%v)", pe.Source, pe.Type, pe.Detail)

	if pe.Line != 0 {
		ret = fmt.Sprintf("%s (Line:%d Pos:%d)", ret, pe.Line, pe.Pos)
	}

	return ret
}

/*
newError creates a new plan Error for a given AST node.
*/
func newError(source string, t error, detail string, node *parser.ASTNode) error {
	var line, pos int

	if node != nil && node.Token != nil {
		line = node.Token.Lline
		pos = node.Token.Lpos
	}

	return &Error{source, t, detail, line, pos}
}

/*
Plan compilation related error types
*/
var (
	ErrInvalidConstruct    = errors.New("Invalid construct")
	ErrMissingOperation    = errors.New("Missing operation")
	ErrAmbiguousDefinition = errors.New("Ambiguous definition")
	ErrUnknownFragment     = errors.New("Unknown fragment")
	ErrConnectionConflict  = errors.New("Conflicting connection annotations")
)
