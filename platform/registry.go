// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"fmt"
	"sort"
)

// A Registration describes one adapter: how to tell whether the
// current environment belongs to its platform, and how to build it.
type Registration struct {
	Name string
	// Detect is a pure environment check with no side effects and
	// no network calls.
	Detect func() bool
	New    func() Platform
}

var registry = map[string]Registration{}

// Register adds an adapter to the registry. Adapters call this from
// init(); registering the same name twice is a programming error.
func Register(r Registration) {
	if _, dup := registry[r.Name]; dup {
		panic(fmt.Sprintf("platform: Register called twice for %q", r.Name))
	}
	registry[r.Name] = r
}

// Get returns a new instance of the named adapter.
func Get(name string) (Platform, error) {
	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("platform: no adapter registered for %q", name)
	}
	return r.New(), nil
}

// Detect returns a new instance of the first registered adapter (in
// name order, for determinism) whose Detect reports that the current
// environment belongs to its platform.
func Detect() (Platform, error) {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r := registry[name]; r.Detect() {
			return r.New(), nil
		}
	}
	return nil, fmt.Errorf("platform: no registered adapter matches the current environment")
}
