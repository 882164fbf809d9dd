package env

import (
	"os"
	"sort"
	"strings"
)

// Set composes the environment handed to the wrapped job. Layers apply in
// order: the OS environment (optional), global "K=V" pairs from config,
// then per-job pairs; later layers override earlier ones. Values may
// reference earlier keys as ${VAR}; expansion is a single pass against the
// composed map, no recursion.
type Set struct {
	useOS  bool
	global map[string]string
}

func New(useOS bool) *Set {
	return &Set{useOS: useOS, global: make(map[string]string)}
}

// Set records a global variable override.
func (s *Set) Set(k, v string) {
	if k == "" {
		return
	}
	s.global[k] = v
}

// SetAll records each "K=V" pair; malformed entries are skipped.
func (s *Set) SetAll(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := splitPair(kv); ok {
			s.global[k] = v
		}
	}
}

// Merge returns the final "K=V" slice for the given per-job overrides,
// sorted for determinism.
func (s *Set) Merge(perJob []string) []string {
	m := make(map[string]string)
	if s.useOS {
		for _, kv := range os.Environ() {
			if k, v, ok := splitPair(kv); ok {
				m[k] = v
			}
		}
	}
	for k, v := range s.global {
		m[k] = v
	}
	for _, kv := range perJob {
		if k, v, ok := splitPair(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func splitPair(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(v string, m map[string]string) string {
	if !strings.Contains(v, "${") {
		return v
	}
	for k, rep := range m {
		v = strings.ReplaceAll(v, "${"+k+"}", rep)
	}
	return v
}
