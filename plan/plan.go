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
Package plan contains the document planner of the cache.

The planner compiles a GraphQL query/mutation/subscription document into a
Plan - an immutable tree of PlanFields which describes every selection, how
its arguments are built from variables and whether it is a connection. Plans
drive both the write path (normalization) and the read path (composition).

Plans are cached by document identity: compiling the same document string
twice returns the same Plan instance. Recompilation is never triggered by
variables - argument values are resolved when BuildArgs is called.

A field is marked as a connection only when it carries an explicit
@connection directive:

	posts(category: "tech", first: 10) @connection(args: ["category"], mode: "infinite", dedupe: "cursor")

The args list names the identity arguments of the connection. If it is
omitted all non-pagination arguments form the identity.
*/
package plan

import (
	"fmt"
	"sync"

	"devt.de/krotik/common/lang/graphql/parser"
)

/*
Plan is the compiled, immutable description of a document.
*/
type Plan struct {
	source   string                 // Name of the source which was compiled
	opType   string                 // Operation type (query, mutation, subscription)
	opName   string                 // Name of the operation (may be empty)
	declared []string               // Declared variable names
	defaults map[string]interface{} // Default values of declared variables
	fields   []*PlanField           // Root selections
}

/*
Operation types
*/
const (
	OpQuery        = "query"
	OpMutation     = "mutation"
	OpSubscription = "subscription"
)

/*
planCache caches compiled plans by document string.
*/
var planCache = make(map[string]*Plan)
var planCacheLock = &sync.Mutex{}

/*
Compile compiles a document into a Plan. The result is memoized - compiling
the same document string again returns the same Plan instance. A document
with inconsistent connection annotations for the same field fails the whole
compile with an Error of type ErrConnectionConflict.
*/
func Compile(name string, doc string) (*Plan, error) {
	planCacheLock.Lock()

	if p, ok := planCache[doc]; ok {
		planCacheLock.Unlock()
		return p, nil
	}

	planCacheLock.Unlock()

	p, err := compile(name, doc)

	if err == nil {
		planCacheLock.Lock()
		planCache[doc] = p
		planCacheLock.Unlock()
	}

	return p, err
}

/*
Source returns the name of the source which was compiled.
*/
func (p *Plan) Source() string {
	return p.source
}

/*
OpType returns the operation type of this plan.
*/
func (p *Plan) OpType() string {
	return p.opType
}

/*
OpName returns the operation name of this plan.
*/
func (p *Plan) OpName() string {
	return p.opName
}

/*
Fields returns the root selections of this plan.
*/
func (p *Plan) Fields() []*PlanField {
	return p.fields
}

/*
MergeVariables merges given variable values with the declared defaults of
this plan. Only declared variables are carried over.
*/
func (p *Plan) MergeVariables(vars map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{})

	for _, name := range p.declared {
		if val, ok := vars[name]; ok {
			res[name] = val
		} else if val, ok := p.defaults[name]; ok {
			res[name] = val
		}
	}

	return res
}

/*
Signature returns a stable identity string for this plan and a set of
variable values. Two reads with the same signature request the same data.
*/
func (p *Plan) Signature(vars map[string]interface{}) string {
	return fmt.Sprintf("%s/%s(%s)", p.opType, p.opName,
		StringifyArgs(p.MergeVariables(vars)))
}

/*
compile does the actual compilation work for Compile.
*/
func compile(name string, doc string) (*Plan, error) {
	ast, err := parser.ParseWithRuntime(name, doc, nil)
	if err != nil {
		return nil, err
	}

	c := &compilation{name, make(map[string]*parser.ASTNode), make(map[string]string)}

	// Collect fragment definitions of the whole document

	if err := c.collectFragments(ast); err != nil {
		return nil, err
	}

	// Find the operation to compile - the first operation definition is taken

	op := findOperation(ast)

	if op == nil {
		return nil, newError(name, ErrMissingOperation,
			"No executable expression found", ast)
	}

	p := &Plan{
		source:   name,
		opType:   OpQuery,
		declared: []string{},
		defaults: make(map[string]interface{}),
	}

	// Determine operation type and name

	if op.Children[0].Name == parser.NodeOperationType {
		p.opType = op.Children[0].Token.Val

		if len(op.Children) > 1 && op.Children[1].Name != parser.NodeVariableDefinitions &&
			op.Children[1].Name != parser.NodeSelectionSet {
			p.opName = op.Children[1].Token.Val
		}
	}

	// Collect declared variables and their default values

	for _, child := range op.Children {

		if child.Name == parser.NodeVariableDefinitions {

			for _, vardef := range child.Children {
				varname := vardef.Children[0].Token.Val
				p.declared = append(p.declared, varname)

				if len(vardef.Children) > 2 {
					p.defaults[varname] = valueOf(vardef.Children[2], nil)
				}
			}
		}
	}

	// Compile the selection set

	ss := op.Children[len(op.Children)-1]

	if ss.Name != parser.NodeSelectionSet {
		return nil, newError(name, ErrInvalidConstruct,
			"Operation has no selection set", op)
	}

	p.fields, err = c.compileSelectionSet(ss, "")

	if err != nil {
		return nil, err
	}

	return p, nil
}

/*
compilation holds the state of one compile run.
*/
type compilation struct {
	source     string                     // Name of the source which is compiled
	fragments  map[string]*parser.ASTNode // Fragment definitions by name
	signatures map[string]string          // Connection annotation signatures by qualified field name
}

/*
collectFragments collects all fragment definitions of a document.
*/
func (c *compilation) collectFragments(node *parser.ASTNode) error {

	if node.Name == parser.NodeFragmentDefinition {
		fname := node.Children[0].Token.Val

		if _, ok := c.fragments[fname]; ok {
			return newError(c.source, ErrAmbiguousDefinition,
				fmt.Sprintf("Fragment %s defined multiple times", fname), node)
		}

		c.fragments[fname] = node
	}

	for _, child := range node.Children {
		if err := c.collectFragments(child); err != nil {
			return err
		}
	}

	return nil
}

/*
findOperation returns the first operation definition of a document.
*/
func findOperation(node *parser.ASTNode) *parser.ASTNode {

	if node.Name == parser.NodeOperationDefinition {
		return node
	}

	for _, child := range node.Children {
		if op := findOperation(child); op != nil {
			return op
		}
	}

	return nil
}

/*
compileSelectionSet compiles a selection set into a list of PlanFields.
Fragment spreads and inline fragments are flattened into the selection with
their type condition attached to every flattened field.
*/
func (c *compilation) compileSelectionSet(ss *parser.ASTNode, onType string) ([]*PlanField, error) {
	res := make([]*PlanField, 0, len(ss.Children))

	for _, child := range ss.Children {

		if child.Name == parser.NodeField {
			field, err := c.compileField(child, onType)

			if err != nil {
				return nil, err
			}

			res = append(res, field)

		} else if child.Name == parser.NodeFragmentSpread {
			fd, ok := c.fragments[child.Token.Val]

			if !ok {
				return nil, newError(c.source, ErrUnknownFragment,
					fmt.Sprintf("Fragment %s is not defined", child.Token.Val), child)
			}

			fields, err := c.compileSelectionSet(
				fd.Children[len(fd.Children)-1], fd.Children[1].Token.Val)

			if err != nil {
				return nil, err
			}

			res = append(res, fields...)

		} else if child.Name == parser.NodeInlineFragment {

			fields, err := c.compileSelectionSet(
				child.Children[len(child.Children)-1], child.Children[0].Token.Val)

			if err != nil {
				return nil, err
			}

			res = append(res, fields...)
		}
	}

	return res, nil
}

/*
compileField compiles a single field selection.
*/
func (c *compilation) compileField(node *parser.ASTNode, onType string) (*PlanField, error) {
	var err error

	field := &PlanField{
		onType: onType,
		kind:   Scalar,
		mode:   DefaultMode,
		dedupe: DefaultDedupe,
	}

	// Determine alias and name - the alias equals the name if not aliased

	field.alias = node.Children[0].Token.Val

	if node.Children[0].Name == parser.NodeAlias {
		field.name = node.Children[1].Token.Val
	} else {
		field.name = node.Children[0].Token.Val
	}

	// Compile arguments, directives and the nested selection

	for _, child := range node.Children {

		if child.Name == parser.NodeArguments {
			field.args = compileArgs(child)

		} else if child.Name == parser.NodeDirectives {

			for _, d := range child.Children {
				du := &directiveUse{name: d.Children[0].Token.Val}

				for _, dc := range d.Children {

					if dc.Name == parser.NodeArguments {
						du.args = compileArgs(dc)

					} else if dc.Name == parser.NodeSelectionSet {

						// The parser attaches the selection of a field with a
						// trailing argument-less directive to the directive
						// node itself - it is the field's selection

						field.kind = Link

						if field.children, err = c.compileSelectionSet(dc, ""); err != nil {
							return nil, err
						}
					}
				}

				field.directives = append(field.directives, du)
			}

		} else if child.Name == parser.NodeSelectionSet {
			field.kind = Link

			if field.children, err = c.compileSelectionSet(child, ""); err != nil {
				return nil, err
			}
		}
	}

	// Apply the connection annotation

	if d := field.directive("connection"); d != nil {
		field.kind = Connection

		for _, a := range d.args {
			val := valueOf(a.value, nil)

			if a.name == "args" {

				if list, ok := val.([]interface{}); ok {
					field.connectionArgs = make([]string, 0, len(list))

					for _, item := range list {
						field.connectionArgs = append(field.connectionArgs, fmt.Sprint(item))
					}
				}

			} else if a.name == "mode" {
				field.mode = fmt.Sprint(val)

			} else if a.name == "dedupe" {
				field.dedupe = fmt.Sprint(val)
			}
		}
	}

	// Conflicting connection annotations for the same field fail the compile

	signature := field.connectionSignature()

	if prev, ok := c.signatures[field.QualifiedName()]; ok {

		if prev != signature {
			return nil, newError(c.source, ErrConnectionConflict,
				fmt.Sprintf("Field %s is annotated inconsistently",
					field.QualifiedName()), node)
		}

	} else {
		c.signatures[field.QualifiedName()] = signature
	}

	return field, nil
}

/*
compileArgs compiles an arguments node into argument expressions.
*/
func compileArgs(node *parser.ASTNode) []argNode {
	res := make([]argNode, 0, len(node.Children))

	for _, a := range node.Children {
		res = append(res, argNode{a.Children[0].Token.Val, a.Children[1]})
	}

	return res
}
