// Package context is the Workflow Context: a variable store with path-based
// resolution of `${...}` references and condition-string evaluation, per
// spec.md §4.7. (Named "context" per the package map; callers import it
// aliased to avoid shadowing the standard library's context package.)
package context

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PaesslerAG/jsonpath"
)

// Context is a mutable variable store, safe for concurrent use.
type Context struct {
	mu   sync.RWMutex
	vars map[string]any
}

// New returns an empty Context, optionally seeded from initial.
func New(initial map[string]any) *Context {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &Context{vars: vars}
}

// Get returns the top-level variable named key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[key]
	return v, ok
}

// Set assigns a top-level variable.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = value
}

// Delete removes a top-level variable, if present.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vars, key)
}

// Snapshot returns a shallow copy of the full variable map, for persistence.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

var refRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve implements spec.md §4.7's variable resolution rule against an
// arbitrary literal: strings containing `${path}` substitutions are
// expanded; mappings and lists are resolved recursively; anything else is
// returned unchanged.
func (c *Context) Resolve(value any) any {
	switch v := value.(type) {
	case string:
		return c.resolveString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = c.Resolve(vv)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = c.Resolve(vv)
		}
		return out
	default:
		return value
	}
}

func (c *Context) resolveString(s string) any {
	matches := refRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		v, _ := c.ResolvePath(path)
		return v
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		path := s[m[2]:m[3]]
		v, _ := c.ResolvePath(path)
		sb.WriteString(stringify(v))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// ResolvePath resolves a bare/dotted/indexed path against the context's
// variables, returning (nil, false) if resolution fails at any step (per
// spec.md §4.7, callers of Resolve treat this as a silent null rather than
// an error).
func (c *Context) ResolvePath(path string) (any, bool) {
	c.mu.RLock()
	root := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		root[k] = v
	}
	c.mu.RUnlock()

	if v, ok := jsonpathGet(root, path); ok {
		return v, true
	}
	return walkPath(root, path)
}

// jsonpathGet adapts the spec's bare/dotted/indexed grammar to
// github.com/PaesslerAG/jsonpath's `$.`-rooted form. jsonpath returns an
// error on a missing key or out-of-range index (rather than the spec's
// "silent null"), so any error here just falls through to walkPath.
func jsonpathGet(root map[string]any, path string) (any, bool) {
	expr := "$." + path
	v, err := jsonpath.Get(expr, root)
	if err != nil {
		return nil, false
	}
	return v, true
}

var pathSegmentRe = regexp.MustCompile(`([^.\[\]]+)|\[(\d+)\]`)

// walkPath is a small hand-written fallback walker covering exactly the
// grammar spec.md §4.7 names: bare name, dotted descent, array index.
func walkPath(root map[string]any, path string) (any, bool) {
	segments := pathSegmentRe.FindAllStringSubmatch(path, -1)
	if segments == nil {
		return nil, false
	}

	var current any = root
	for _, seg := range segments {
		name, idx := seg[1], seg[2]
		switch {
		case name != "":
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[name]
			if !ok {
				return nil, false
			}
		case idx != "":
			i, err := strconv.Atoi(idx)
			if err != nil {
				return nil, false
			}
			list, ok := current.([]any)
			if !ok || i < 0 || i >= len(list) {
				return nil, false
			}
			current = list[i]
		}
	}
	return current, true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
