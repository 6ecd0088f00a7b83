package convert

import (
	"time"
)

// NamingPolicy selects how the output object name is derived from the
// source base name.
type NamingPolicy string

const (
	// NamingTimestamped appends a UTC second-resolution timestamp, keeping
	// successive conversions of the same source distinct. Two conversions
	// within the same second still collide; this is a known weakness.
	NamingTimestamped NamingPolicy = "timestamped"
	// NamingFlat reuses the base name as-is, so re-converting the same
	// source overwrites the previous output and yields a stable URL.
	NamingFlat NamingPolicy = "flat"
)

const timestampLayout = "20060102150405"

// ValidPolicy reports whether p is a recognized naming policy.
func ValidPolicy(p NamingPolicy) bool {
	return p == NamingTimestamped || p == NamingFlat
}

// DeriveObjectName computes the output object name for a source base name.
// A non-empty prefix is prepended folder-style for namespace separation
// within a shared container. Deterministic given (base, policy, prefix, now).
func DeriveObjectName(base string, policy NamingPolicy, prefix string, now time.Time) string {
	name := base + ".xlsx"
	if policy == NamingTimestamped {
		name = base + "_" + now.UTC().Format(timestampLayout) + ".xlsx"
	}
	if prefix != "" {
		name = prefix + "/" + name
	}
	return name
}
