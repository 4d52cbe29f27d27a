package infer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/spf13/cast"
)

// FieldStats describes one leaf path across a set of sampled objects.
type FieldStats struct {
	Path string // jsonpath relative to the profiled object
	Name string // last property name

	// Present holds the ordinals of the objects that carry the path.
	Present *roaring.Bitmap

	Nulls    int
	Bools    int
	Integers int
	Floats   int
	Strings  int
	Dates    int
	UUIDs    int
	Arrays   int
	Other    int
}

// Count is the number of objects carrying the path.
func (fs *FieldStats) Count() int {
	return int(fs.Present.GetCardinality())
}

// Profile is the field inventory of a set of objects. Arrays of objects get
// their own profile over all of their elements.
type Profile struct {
	Objects  int
	Fields   map[string]*FieldStats
	Elements map[string]*Profile
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

func newProfile() *Profile {
	return &Profile{
		Fields:   make(map[string]*FieldStats),
		Elements: make(map[string]*Profile),
	}
}

// Analyze profiles records. Values that are not JSON objects are skipped.
func Analyze(records []any) *Profile {
	p := newProfile()
	for _, rec := range records {
		if obj, ok := rec.(map[string]any); ok {
			p.add(obj)
		}
	}
	return p
}

func (p *Profile) add(obj map[string]any) {
	ord := uint32(p.Objects)
	p.Objects++
	p.walk(obj, nil, ord)
}

func (p *Profile) walk(obj map[string]any, prefix jp.Expr, ord uint32) {
	for k, v := range obj {
		path := appendChild(prefix, k)
		if child, ok := v.(map[string]any); ok {
			p.walk(child, path, ord)
			continue
		}
		p.record(path, k, v, ord)
	}
}

func appendChild(prefix jp.Expr, key string) jp.Expr {
	out := make(jp.Expr, len(prefix), len(prefix)+1)
	copy(out, prefix)
	return append(out, jp.Child(key))
}

func (p *Profile) record(path jp.Expr, name string, v any, ord uint32) {
	key := path.String()
	if strings.HasPrefix(key, "[") {
		key = "$" + key
	}
	fs, ok := p.Fields[key]
	if !ok {
		fs = &FieldStats{Path: key, Name: name, Present: roaring.New()}
		p.Fields[key] = fs
	}
	fs.Present.Add(ord)

	switch val := v.(type) {
	case nil:
		fs.Nulls++
	case bool:
		fs.Bools++
	case json.Number:
		if _, err := val.Int64(); err == nil {
			fs.Integers++
		} else {
			fs.Floats++
		}
	case float64:
		if val == float64(int64(val)) {
			fs.Integers++
		} else {
			fs.Floats++
		}
	case string:
		fs.Strings++
		if _, err := uuid.Parse(val); err == nil && len(val) == 36 {
			fs.UUIDs++
		} else if dateRe.MatchString(val) {
			if _, err := cast.StringToDate(val); err == nil {
				fs.Dates++
			}
		}
	case []any:
		fs.Arrays++
		var elems *Profile
		for _, item := range val {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if elems == nil {
				elems = p.Elements[key]
				if elems == nil {
					elems = newProfile()
					p.Elements[key] = elems
				}
			}
			elems.add(obj)
		}
	default:
		fs.Other++
	}
}

// Paths returns the profiled leaf paths, sorted.
func (p *Profile) Paths() []string {
	out := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ObjectArrays returns the paths holding arrays of objects, most frequent
// first.
func (p *Profile) ObjectArrays() []string {
	out := make([]string, 0, len(p.Elements))
	for k := range p.Elements {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := p.Fields[out[i]].Count(), p.Fields[out[j]].Count()
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}
