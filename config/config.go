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
Package config contains the runtime configuration of GraphCache.
*/
package config

import (
	"fmt"
	"strconv"
	"strings"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/fileutil"
)

// Global variables
// ================

/*
DefaultConfigFile is the default config file which will be used to configure GraphCache
*/
var DefaultConfigFile = "graphcache.config.json"

/*
Known configuration options for GraphCache
*/
const (
	ResultCacheMaxSize       = "ResultCacheMaxSize"
	ResultCacheMaxAgeSeconds = "ResultCacheMaxAgeSeconds"
	HydrationWindowSeconds   = "HydrationWindowSeconds"
	PaginationArguments      = "PaginationArguments"
	DefaultComposeMode       = "DefaultComposeMode"
	DefaultDedupeStrategy    = "DefaultDedupeStrategy"
)

/*
DefaultConfig is the defaut configuration
*/
var DefaultConfig = map[string]interface{}{
	ResultCacheMaxSize:       100,
	ResultCacheMaxAgeSeconds: 2,
	HydrationWindowSeconds:   2,
	PaginationArguments:      "first,last,before,after,offset,page",
	DefaultComposeMode:       "infinite",
	DefaultDedupeStrategy:    "cursor",
}

/*
Config is the actual config which is used
*/
var Config map[string]interface{}

/*
LoadConfigFile loads a given config file. If the config file does not exist it is
created with the default options.
*/
func LoadConfigFile(configfile string) error {
	var err error

	Config, err = fileutil.LoadConfig(configfile, DefaultConfig)

	return err
}

/*
LoadDefaultConfig loads the default configuration.
*/
func LoadDefaultConfig() {
	data := make(map[string]interface{})
	for k, v := range DefaultConfig {
		data[k] = v
	}

	Config = data
}

// Helper functions
// ================

/*
Str reads a config value as a string value.
*/
func Str(key string) string {
	return fmt.Sprint(Config[key])
}

/*
Int reads a config value as an int value.
*/
func Int(key string) int64 {
	ret, err := strconv.ParseInt(fmt.Sprint(Config[key]), 10, 64)

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
Bool reads a config value as a boolean value.
*/
func Bool(key string) bool {
	ret, err := strconv.ParseBool(fmt.Sprint(Config[key]))

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
StrList reads a config value as a comma-separated list of strings.
*/
func StrList(key string) []string {
	var res []string

	for _, item := range strings.Split(Str(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}

	return res
}
