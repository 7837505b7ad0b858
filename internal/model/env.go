package model

import (
	"maps"
	"slices"
	"strings"
)

// EnvSnapshot is a point in time copy of environment variables.
type EnvSnapshot map[string]string

// Copy returns an independent copy of the snapshot.
func (e EnvSnapshot) Copy() EnvSnapshot {
	c := make(EnvSnapshot, len(e))
	maps.Copy(c, e)
	return c
}

// Slice returns the snapshot as sorted `KEY=VALUE` pairs.
func (e EnvSnapshot) Slice() []string {
	keys := slices.Sorted(maps.Keys(e))
	res := make([]string, 0, len(keys))
	for _, k := range keys {
		res = append(res, k+"="+e[k])
	}
	return res
}

// ParseEnviron parses `KEY=VALUE` pairs (as returned by os.Environ). Entries without
// a name are ignored, the last value of a repeated name wins.
func ParseEnviron(environ []string) EnvSnapshot {
	env := make(EnvSnapshot, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// EnvOverride is an optional environment for a single run. When Set is false the
// ambient environment is used, when true Vars replaces it completely, even if empty.
type EnvOverride struct {
	Set  bool
	Vars EnvSnapshot
}

// InheritEnv is the override that uses the ambient environment.
var InheritEnv = EnvOverride{}

// ReplaceEnv returns an override that replaces the ambient environment with vars.
func ReplaceEnv(vars EnvSnapshot) EnvOverride {
	return EnvOverride{Set: true, Vars: vars.Copy()}
}
