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
Package data contains the record primitives of the cache.

Records are items stored in the normalized graph. The cacheRecord object is
the minimal implementation of the Record interface and represents a simple
normalized entity. Records have fields which may hold scalar values, Ref
values pointing to other records or lists of either. Setting a nil value to
a field is equivalent to removing the field.
*/
package data

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

/*
Record models a normalized entity record.
*/
type Record interface {

	/*
	   Key returns the unique entity key of this record.
	*/
	Key() string

	/*
	   Typename returns the type name of this record.
	*/
	Typename() string

	/*
		Fields returns the field data of this record.
	*/
	Fields() map[string]interface{}

	/*
		Attr returns a field of this record.
	*/
	Attr(field string) interface{}

	/*
		SetAttr sets a field of this record. Setting a nil
		value removes the field.
	*/
	SetAttr(field string, val interface{})

	/*
	   Copy returns a shallow copy of this record.
	*/
	Copy() Record

	/*
	   String returns a string representation of this record.
	*/
	String() string
}

/*
RecordKey is the key field for a record
*/
const RecordKey = "__key"

/*
RecordTypename is the type name field for a record
*/
const RecordTypename = "__typename"

/*
cacheRecord data structure.
*/
type cacheRecord struct {
	fields map[string]interface{} // Data which is held by this record
}

/*
NewRecord creates a new Record instance.
*/
func NewRecord() Record {
	return &cacheRecord{make(map[string]interface{})}
}

/*
NewRecordFromMap creates a new Record instance from a given field map.
*/
func NewRecordFromMap(fields map[string]interface{}) Record {
	return &cacheRecord{fields}
}

/*
Key returns the unique entity key of this record.
*/
func (cr *cacheRecord) Key() string {
	return cr.stringAttr(RecordKey)
}

/*
Typename returns the type name of this record.
*/
func (cr *cacheRecord) Typename() string {
	return cr.stringAttr(RecordTypename)
}

/*
Fields returns the field data of this record.
*/
func (cr *cacheRecord) Fields() map[string]interface{} {
	return cr.fields
}

/*
Attr returns a field of this record.
*/
func (cr *cacheRecord) Attr(field string) interface{} {
	val, _ := cr.fields[field]
	return val
}

/*
SetAttr sets a field of this record. Setting a nil value removes the field.
*/
func (cr *cacheRecord) SetAttr(field string, val interface{}) {
	if val != nil {
		cr.fields[field] = val
	} else {
		delete(cr.fields, field)
	}
}

/*
Copy returns a shallow copy of this record.
*/
func (cr *cacheRecord) Copy() Record {
	fields := make(map[string]interface{}, len(cr.fields))

	for k, v := range cr.fields {
		fields[k] = v
	}

	return &cacheRecord{fields}
}

/*
Return the value of a field as a string. Or an
empty string if it can't be represented as a string.
*/
func (cr *cacheRecord) stringAttr(field string) string {
	val, found := cr.fields[field]

	if st, ok := val.(string); found && ok {
		return st
	} else if st, ok := val.(fmt.Stringer); found && ok {
		return st.String()
	}

	return ""
}

/*
String returns a string representation of this record.
*/
func (cr *cacheRecord) String() string {
	var buf bytes.Buffer

	fieldlist := make([]string, 0, len(cr.fields))
	maxlen := 0

	for field := range cr.fields {
		fieldlist = append(fieldlist, field)
		if flen := len(field); flen > maxlen {
			maxlen = flen
		}
	}

	sort.StringSlice(fieldlist).Sort()

	buf.WriteString("CacheRecord:\n")

	buf.WriteString(fmt.Sprintf("    %"+
		strconv.Itoa(maxlen)+"v : %v\n", "key", cr.Key()))

	for _, field := range fieldlist {
		if field == RecordKey {
			continue
		}
		buf.WriteString(fmt.Sprintf("    %"+
			strconv.Itoa(maxlen)+"v : %v\n", field, cr.fields[field]))
	}

	return buf.String()
}
