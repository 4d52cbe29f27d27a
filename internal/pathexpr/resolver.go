package pathexpr

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ohler55/ojg/jp"
)

// DefaultCacheSize bounds the number of compiled expressions kept per resolver.
const DefaultCacheSize = 4096

// ErrNotFound is returned by Set and Delete when the parent of the target
// location does not exist.
var ErrNotFound = errors.New("path not found")

// Compiled is a parsed path expression. It is immutable and safe to share.
type Compiled struct {
	raw  string
	expr jp.Expr
}

func (c Compiled) String() string {
	return c.raw
}

// Resolver evaluates JSONPath-style expressions against decoded JSON trees
// (map[string]any / []any). Parsed expressions are memoized in an LRU; two
// callers racing on the same path may both compile it, which is harmless.
type Resolver struct {
	cache *lru.Cache[string, jp.Expr]
}

// NewResolver returns a resolver caching up to size compiled expressions.
func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, jp.Expr](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Resolver{cache: cache}
}

// Compile parses path. A path without a leading "$" is rooted at the top
// level of the document.
func (r *Resolver) Compile(path string) (Compiled, error) {
	path = strings.TrimSpace(path)
	if expr, ok := r.cache.Get(path); ok {
		return Compiled{raw: path, expr: expr}, nil
	}
	expr, err := parse(path)
	if err != nil {
		return Compiled{}, err
	}
	r.cache.Add(path, expr)
	return Compiled{raw: path, expr: expr}, nil
}

// Resolve returns the first value matched by path. The boolean is false when
// nothing matched, including when path cannot be parsed; a matched JSON null
// returns (nil, true).
func (r *Resolver) Resolve(doc any, path string) (any, bool) {
	c, err := r.Compile(path)
	if err != nil {
		return nil, false
	}
	return r.ResolveCompiled(doc, c)
}

// ResolveCompiled is Resolve for a pre-compiled expression.
func (r *Resolver) ResolveCompiled(doc any, c Compiled) (any, bool) {
	if c.expr == nil || doc == nil {
		return nil, false
	}
	results := c.expr.Get(doc)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// ResolveFirstNonNull tries paths in order and returns the first present,
// non-null value together with the path that produced it.
func (r *Resolver) ResolveFirstNonNull(doc any, paths []string) (any, string, bool) {
	for _, p := range paths {
		if v, ok := r.Resolve(doc, p); ok && v != nil {
			return v, p, true
		}
	}
	return nil, "", false
}

// IsValid reports whether path parses.
func (r *Resolver) IsValid(path string) bool {
	_, err := r.Compile(path)
	return err == nil
}

// Set writes value at path inside doc. The parent container must already
// exist. doc is modified in place.
func (r *Resolver) Set(doc any, path string, value any) error {
	c, err := r.Compile(path)
	if err != nil {
		return err
	}
	parent, last, err := splitLast(doc, c)
	if err != nil {
		return err
	}
	switch key := last.(type) {
	case jp.Child:
		m, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("set %s: parent is %T, not an object: %w", path, parent, ErrNotFound)
		}
		m[string(key)] = value
		return nil
	case jp.Nth:
		a, ok := parent.([]any)
		if !ok {
			return fmt.Errorf("set %s: parent is %T, not an array: %w", path, parent, ErrNotFound)
		}
		i, ok := index(int(key), len(a))
		if !ok {
			return fmt.Errorf("set %s: index %d out of range: %w", path, int(key), ErrNotFound)
		}
		a[i] = value
		return nil
	default:
		return fmt.Errorf("set %s: unsupported final segment %T", path, last)
	}
}

// Delete removes the object key addressed by path. Array elements cannot be
// deleted in place and yield an error.
func (r *Resolver) Delete(doc any, path string) error {
	c, err := r.Compile(path)
	if err != nil {
		return err
	}
	parent, last, err := splitLast(doc, c)
	if err != nil {
		return err
	}
	key, ok := last.(jp.Child)
	if !ok {
		return fmt.Errorf("delete %s: final segment must be a property name", path)
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("delete %s: parent is %T, not an object: %w", path, parent, ErrNotFound)
	}
	delete(m, string(key))
	return nil
}

// LastName returns the final property name of path, or path itself when the
// expression does not end in a property.
func (r *Resolver) LastName(path string) string {
	c, err := r.Compile(path)
	if err != nil || len(c.expr) == 0 {
		return path
	}
	if key, ok := c.expr[len(c.expr)-1].(jp.Child); ok {
		return string(key)
	}
	return path
}

var std = NewResolver(DefaultCacheSize)

// IsValid reports whether path parses, using a shared resolver.
func IsValid(path string) bool {
	return std.IsValid(path)
}

func parse(path string) (jp.Expr, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		if plain, ok := dotted(path); ok {
			return plain, nil
		}
		return nil, fmt.Errorf("invalid path '%s': %w", path, err)
	}
	return expr, nil
}

// dotted reads a path made only of dot-separated property names, such as
// "order-id" or "meta.@timestamp", which JSONPath would otherwise reject
// unless written in bracket form.
func dotted(path string) (jp.Expr, bool) {
	if strings.ContainsAny(path, "[]()'\"*?,=!<> \t") {
		return nil, false
	}
	segs := strings.Split(path, ".")
	var expr jp.Expr
	if segs[0] == "$" {
		expr = jp.R()
		segs = segs[1:]
		if len(segs) == 0 {
			return nil, false
		}
	}
	for _, seg := range segs {
		if seg == "" || seg == "$" || seg == "@" {
			return nil, false
		}
		expr = append(expr, jp.Child(seg))
	}
	return expr, true
}

// splitLast resolves everything but the final fragment of c.
func splitLast(doc any, c Compiled) (any, jp.Frag, error) {
	frags := c.expr
	if len(frags) == 0 {
		return nil, nil, fmt.Errorf("path %s: %w", c.raw, ErrNotFound)
	}
	last := frags[len(frags)-1]
	head := frags[:len(frags)-1]
	if isRootOnly(head) {
		return doc, last, nil
	}
	parents := head.Get(doc)
	if len(parents) == 0 {
		return nil, nil, fmt.Errorf("path %s: %w", c.raw, ErrNotFound)
	}
	return parents[0], last, nil
}

func isRootOnly(frags jp.Expr) bool {
	for _, f := range frags {
		switch f.(type) {
		case jp.Root, jp.Bracket:
		default:
			return false
		}
	}
	return true
}

func index(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}
