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
Package norm contains the normalizer of the cache.

The normalizer walks a response payload guided by a compiled plan and writes
entity records and page records into the store. Objects without a resolvable
identity are kept inline under their parent - this is a best-effort policy,
sibling writes always proceed.

Identity resolution is configured per type: a map of type names to identity
functions and a map of interface names to their concrete types. The default
identity of an object is its id or _id field.
*/
package norm

import (
	"fmt"

	"devt.de/krotik/common/stringutil"
)

/*
TypenameField is the discriminator field which determines the type of a
payload object.
*/
const TypenameField = "__typename"

/*
KeyFunc derives the id of a payload object. Returning an empty string means
the object has no resolvable identity.
*/
type KeyFunc func(obj map[string]interface{}) string

/*
Resolver resolves entity keys of payload objects.
*/
type Resolver struct {
	keys       map[string]KeyFunc  // Identity functions by type name
	interfaces map[string][]string // Concrete type names by interface name
}

/*
NewResolver creates a new Resolver instance. Both maps may be nil.
*/
func NewResolver(keys map[string]KeyFunc, interfaces map[string][]string) *Resolver {
	if keys == nil {
		keys = make(map[string]KeyFunc)
	}
	if interfaces == nil {
		interfaces = make(map[string][]string)
	}

	return &Resolver{keys, interfaces}
}

/*
Typename returns the type name of a payload object or an empty string.
*/
func (r *Resolver) Typename(obj map[string]interface{}) string {
	if t, ok := obj[TypenameField]; ok {
		return fmt.Sprint(t)
	}

	return ""
}

/*
ID derives the id of a payload object. A configured identity function for
the object's type takes precedence over the default id / _id lookup.
*/
func (r *Resolver) ID(obj map[string]interface{}) string {

	if kf, ok := r.keys[r.Typename(obj)]; ok {
		return kf(obj)
	}

	if id, ok := obj["id"]; ok && id != nil {
		return fmt.Sprint(id)
	}

	if id, ok := obj["_id"]; ok && id != nil {
		return fmt.Sprint(id)
	}

	return ""
}

/*
RecordKey derives the entity key (Typename:id) of a payload object. Returns
an empty string if the object has no resolvable identity.
*/
func (r *Resolver) RecordKey(obj map[string]interface{}) string {
	typename := r.Typename(obj)

	if typename == "" {
		return ""
	}

	if id := r.ID(obj); id != "" {
		return typename + ":" + id
	}

	return ""
}

/*
MatchesType returns if a given type name satisfies a type condition. The
condition is satisfied if it is empty, names the type itself or names an
interface which the type implements.
*/
func (r *Resolver) MatchesType(typename string, cond string) bool {

	if cond == "" || cond == typename {
		return true
	}

	if concrete, ok := r.interfaces[cond]; ok {
		return stringutil.IndexOf(typename, concrete) != -1
	}

	return false
}
