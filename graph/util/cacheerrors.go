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
Package util contains utility classes for the cache storage.

CacheError

Models a cache related error. Low-level errors should be wrapped in a CacheError
before they are returned to a client.
*/
package util

import (
	"errors"
	"fmt"
)

/*
CacheError is a cache related error
*/
type CacheError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
}

/*
Error returns a human-readable string representation of this error.
*/
func (ce *CacheError) Error() string {
	if ce.Detail != "" {
		return fmt.Sprintf("CacheError: %v (%v)", ce.Type, ce.Detail)
	}

	return fmt.Sprintf("CacheError: %v", ce.Type)
}

/*
Cache related error types
*/
var (
	ErrInvalidData  = errors.New("Invalid data")
	ErrIdentity     = errors.New("Object has no resolvable identity")
	ErrCacheMiss    = errors.New("No satisfying record in the cache")
	ErrUnknownLayer = errors.New("Unknown optimistic layer")
	ErrUnknownPage  = errors.New("Unknown page record")
	ErrReading      = errors.New("Could not read cache information")
	ErrWriting      = errors.New("Could not write cache information")
)
