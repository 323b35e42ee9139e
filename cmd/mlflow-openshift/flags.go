package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ConfigFlag collects repeated -C key=value flags into a deployment config.
type ConfigFlag map[string]string

func (cfg ConfigFlag) String() string {
	pairs := make([]string, 0, len(cfg))
	for _, key := range slices.Sorted(maps.Keys(cfg)) {
		pairs = append(pairs, key+"="+cfg[key])
	}
	return strings.Join(pairs, ",")
}

func (cfg ConfigFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value but got %q", value)
	}
	cfg[strings.TrimSpace(key)] = strings.TrimSpace(val)
	return nil
}
