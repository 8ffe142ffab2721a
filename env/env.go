// Package env reads the process environment through an injectable lookup
// function so callers and tests never touch global state directly.
package env

import (
	"os"
	"strings"
)

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// Lookup is the LookupFunc backed by the real process environment.
func Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ConstLookup returns a LookupFunc that reads from a fixed map.
func ConstLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Map turns KEY=value pairs, as returned by os.Environ, into a map.
// Later duplicates win.
func Map(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// InDocker is the variable container images set to signal that the browser
// runs inside a container.
const InDocker = "IN_DOCKER"

// IsContainerized reports whether IN_DOCKER holds a truthy value. Only the
// first character counts: t, y or 1 in any case.
func IsContainerized(lookup LookupFunc) bool {
	v, ok := lookup(InDocker)
	if !ok || v == "" {
		return false
	}
	return strings.ContainsRune("ty1", rune(strings.ToLower(v)[0]))
}
