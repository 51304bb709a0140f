// Package namespaces normalizes and validates the namespace identifiers
// that partition the knowledge graph. Every queue lane, graph key, and
// tool argument that names a namespace goes through Normalize first so
// the rest of the code can treat namespace strings as canonical.
package namespaces

import (
	"fmt"
	"strings"
)

const (
	// Default applies when callers omit a namespace.
	Default = "default"

	// MaxLength caps the length of namespaces and graph key segments.
	MaxLength = 128
)

// Normalize lowercases and validates ns, applying fallback when ns is empty.
func Normalize(ns, fallback string) (string, error) {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		ns = strings.TrimSpace(fallback)
	}
	if ns == "" {
		return "", fmt.Errorf("namespace required")
	}
	return NormalizeComponent(ns)
}

// Validate reports whether ns satisfies namespace constraints.
func Validate(ns string) error {
	_, err := Normalize(ns, Default)
	return err
}

// NormalizeComponent lowercases and validates a single name component.
func NormalizeComponent(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("value required")
	}
	if len(name) > MaxLength {
		return "", fmt.Errorf("value too long (max %d characters)", MaxLength)
	}
	name = strings.ToLower(name)
	if !isValidComponent(name) {
		return "", fmt.Errorf("invalid value %q (allowed: lowercase letters, digits, '.', '_', '-')", name)
	}
	return name, nil
}

func isValidComponent(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			continue
		case c >= '0' && c <= '9':
			continue
		case c == '.' || c == '_' || c == '-':
			continue
		default:
			return false
		}
	}
	return true
}

// NormalizeAll normalizes every namespace in the slice, deduplicating
// while preserving first-seen order. An empty slice yields nil.
func NormalizeAll(list []string, fallback string) ([]string, error) {
	if len(list) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, ns := range list {
		normalized, err := Normalize(ns, fallback)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}
