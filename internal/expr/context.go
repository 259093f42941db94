package expr

import (
	"reflect"
	"sort"
	"strings"
)

// Env resolves paths for the evaluator. Context and Scope implement it.
type Env interface {
	Lookup(path []Segment) (any, error)
}

// Context is an immutable tree of named values that expressions read from.
// Leaves are int, float64, bool or string; inner nodes are map[string]any
// and []any. The constructor copies its input, so later changes to the
// caller's maps are not observed.
type Context struct {
	root map[string]any
}

// NewContext normalizes and copies m.
func NewContext(m map[string]any) (*Context, error) {
	root := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := normalize(v, k)
		if err != nil {
			return nil, err
		}
		root[k] = nv
	}
	return &Context{root: root}, nil
}

// MustContext is NewContext for literals known to be valid.
func MustContext(m map[string]any) *Context {
	c, err := NewContext(m)
	if err != nil {
		panic(err)
	}
	return c
}

// With returns a copy of c with key bound to v.
func (c *Context) With(key string, v any) (*Context, error) {
	nv, err := normalize(v, key)
	if err != nil {
		return nil, err
	}
	root := make(map[string]any, len(c.root)+1)
	for k, old := range c.root {
		root[k] = old
	}
	root[key] = nv
	return &Context{root: root}, nil
}

// Lookup walks path from the root.
func (c *Context) Lookup(path []Segment) (any, error) {
	if c == nil {
		return nil, newError(ErrUnresolvedPath, "", "empty context")
	}
	return walkPath(c.root, path)
}

// Get resolves a dotted path such as "attacker.hp".
func (c *Context) Get(dotted string) (any, error) {
	var path []Segment
	for _, part := range strings.Split(dotted, ".") {
		path = append(path, Segment{Kind: SegName, Name: part})
	}
	return c.Lookup(path)
}

// Keys lists the top-level names in sorted order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.root))
	for k := range c.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a deep copy of the tree.
func (c *Context) Map() map[string]any {
	return deepCopy(c.root).(map[string]any)
}

func walkPath(root map[string]any, path []Segment) (any, error) {
	if len(path) == 0 {
		return nil, newError(ErrUnresolvedPath, "", "empty path")
	}
	var cur any = root
	for i, seg := range path {
		next, ok := step(cur, seg)
		if !ok {
			return nil, newError(ErrUnresolvedPath, "", "%s not found", (&Path{Segments: path[:i+1]}).String())
		}
		cur = next
	}
	return cur, nil
}

func step(cur any, seg Segment) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		if seg.Kind == SegIndex {
			return nil, false
		}
		v, ok := c[seg.Name]
		return v, ok
	case []any:
		if seg.Kind != SegIndex {
			return nil, false
		}
		i := seg.Index
		if i < 0 {
			i += len(c)
		}
		if i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}

func normalize(v any, where string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case float32:
		return float64(x), nil
	case float64, bool, string:
		return x, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			ne, err := normalize(e, where+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ne, err := normalize(e, where)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			ne, err := normalize(iter.Value().Interface(), where+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			ne, err := normalize(rv.Index(i).Interface(), where)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	}
	return nil, newError(ErrTypeMismatch, "", "unsupported context value %T at %s", v, where)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}
