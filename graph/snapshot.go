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
	"encoding/json"
	"io"

	"devt.de/krotik/graphcache/graph/data"
	"devt.de/krotik/graphcache/graph/util"
)

/*
snapshot is the serializable representation of a full store.
*/
type snapshot struct {
	Version int                               `json:"version"`
	Records map[string]map[string]interface{} `json:"records"`
	Pages   []*Page                           `json:"pages"`
}

/*
ExportStore dumps the contents of a store to an io.Writer in JSON format:

	{
		"version" : 1,
		"records" : { "<key>" : { "<field>" : <value>, ... }, ... },
		"pages"   : [ { "Key" : ..., "Edges" : [ ... ], ... }, ... ]
	}
*/
func ExportStore(out io.Writer, s *Store) error {
	s.mutex.RLock()

	snap := &snapshot{
		Version: VERSION,
		Records: make(map[string]map[string]interface{}, len(s.records)),
		Pages:   make([]*Page, 0, len(s.pages)),
	}

	for key, rec := range s.records {
		snap.Records[key] = rec.Copy().Fields()
	}

	for _, page := range s.pages {
		snap.Pages = append(snap.Pages, page.Copy())
	}

	s.mutex.RUnlock()

	res, err := json.MarshalIndent(snap, "", "    ")

	if err == nil {
		_, err = out.Write(res)
	}

	if err != nil {
		return &util.CacheError{Type: util.ErrWriting, Detail: err.Error()}
	}

	return nil
}

/*
ImportStore reads a JSON formatted snapshot from an io.Reader and writes its
contents into a store. Importing into a fresh store reproduces identical
GetRecord results for every key present at export time.
*/
func ImportStore(in io.Reader, s *Store) error {
	var snap snapshot

	dec := json.NewDecoder(in)

	if err := dec.Decode(&snap); err != nil {
		return &util.CacheError{Type: util.ErrReading, Detail: err.Error()}
	}

	for key, fields := range snap.Records {
		revived := make(map[string]interface{}, len(fields))

		for field, val := range fields {
			revived[field] = reviveValue(val)
		}

		s.PutRecord(key, revived)
	}

	for _, page := range snap.Pages {

		for i, edge := range page.Edges {
			revived := make(data.Edge, len(edge))

			for k, v := range edge {
				revived[k] = reviveValue(v)
			}

			page.Edges[i] = revived
		}

		s.PutPage(page)
	}

	return nil
}

/*
reviveValue converts decoded wire representations of link values back into
Ref values. Nested maps and lists are converted recursively.
*/
func reviveValue(val interface{}) interface{} {

	if key, ok := data.RefKey(val); ok {
		return data.NewRef(key)
	}

	if m, ok := val.(map[string]interface{}); ok {
		res := make(map[string]interface{}, len(m))

		for k, v := range m {
			res[k] = reviveValue(v)
		}

		return res
	}

	if l, ok := val.([]interface{}); ok {
		res := make([]interface{}, 0, len(l))

		for _, v := range l {
			res = append(res, reviveValue(v))
		}

		return res
	}

	return val
}
