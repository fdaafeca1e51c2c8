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
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"devt.de/krotik/common/lang/graphql/parser"
)

/*
valueOf calculates the value of a value expression in the AST. Variable
references are resolved against the given variable values.
*/
func valueOf(node *parser.ASTNode, vars map[string]interface{}) interface{} {

	if node.Name == parser.NodeVariable {
		return vars[node.Token.Val]

	} else if node.Name == parser.NodeValue || node.Name == parser.NodeDefaultValue {
		val := node.Token.Val

		if node.Token.ID == parser.TokenIntValue {
			i, _ := strconv.ParseInt(val, 10, 64)
			return i
		} else if node.Token.ID == parser.TokenFloatValue {
			f, _ := strconv.ParseFloat(val, 64)
			return f
		} else if node.Token.ID == parser.TokenStringValue {
			return node.Token.Val
		} else if val == "true" {
			return true
		} else if val == "false" {
			return false
		} else if val == "null" {
			return nil
		}

	} else if node.Name == parser.NodeObjectValue {
		res := make(map[string]interface{})

		for _, c := range node.Children {
			res[c.Token.Val] = valueOf(c.Children[0], vars)
		}

		return res

	} else if node.Name == parser.NodeListValue {
		res := make([]interface{}, 0)

		for _, c := range node.Children {
			res = append(res, valueOf(c, vars))
		}

		return res
	}

	// Default (e.g. enum type)

	return node.Token.Val
}

/*
StringifyArgs returns the canonical string representation of an argument map.
Keys are ordered which makes the representation stable and independent of the
input key order. The representation is used to build page and identity keys.
*/
func StringifyArgs(args map[string]interface{}) string {
	var buf bytes.Buffer

	stringifyValue(&buf, args)

	return buf.String()
}

/*
stringifyValue writes the canonical string representation of a value into a
given buffer.
*/
func stringifyValue(buf *bytes.Buffer, val interface{}) {

	switch v := val.(type) {

	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		buf.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(",")
			}
			buf.WriteString(k)
			buf.WriteString(":")
			stringifyValue(buf, v[k])
		}
		buf.WriteString("}")

	case []interface{}:
		buf.WriteString("[")
		for i, item := range v {
			if i > 0 {
				buf.WriteString(",")
			}
			stringifyValue(buf, item)
		}
		buf.WriteString("]")

	case string:
		buf.WriteString(strconv.Quote(v))

	default:
		buf.WriteString(fmt.Sprint(v))
	}
}
