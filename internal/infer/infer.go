// Package infer drafts action configurations from sample documents.
//
// Records are grouped by their action type. Every leaf path seen in a group
// becomes a field mapping whose target type is guessed from the sampled
// values; paths missing from some records are marked omit-if-not-found.
// Leaf paths sharing a property name that never occur in the same record are
// folded into one mapping with fallback source paths.
package infer

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/configfile"
	"github.com/agentic-research/jflat/internal/convert"
	"github.com/agentic-research/jflat/internal/ingest"
	"github.com/agentic-research/jflat/internal/pathexpr"
)

// DefaultActionType names the configuration drafted for records that carry
// no action type.
const DefaultActionType = "default"

// Config controls the inference pipeline.
type Config struct {
	SampleSize      int           // max records to sample (default 1000)
	Seed            int64         // random seed for reservoir sampling
	ActionTypeField string        // discriminator path (default "Action")
	Arrays          api.ArrayMode // what to do with the most common array of objects
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleSize:      1000,
		ActionTypeField: api.DefaultActionTypeField,
	}
}

// Inferrer drafts configurations from records.
type Inferrer struct {
	Config Config

	paths *pathexpr.Resolver
}

func New(cfg Config) *Inferrer {
	if cfg.ActionTypeField == "" {
		cfg.ActionTypeField = api.DefaultActionTypeField
	}
	return &Inferrer{Config: cfg, paths: pathexpr.NewResolver(pathexpr.DefaultCacheSize)}
}

// InferFromRecords drafts one configuration per action type found in
// records.
func (inf *Inferrer) InferFromRecords(records []any) (*configfile.File, error) {
	f := &configfile.File{ActionTypeField: inf.Config.ActionTypeField}
	if inf.Config.SampleSize > 0 && len(records) > inf.Config.SampleSize {
		records = reservoirSample(records, inf.Config.SampleSize, inf.Config.Seed)
	}

	groups := map[string][]any{}
	for _, rec := range records {
		action := ""
		if v, ok := inf.paths.Resolve(rec, inf.Config.ActionTypeField); ok {
			action = convert.Stringify(v)
		}
		groups[action] = append(groups[action], rec)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, action := range keys {
		name := action
		if name == "" {
			name = DefaultActionType
		}
		cfg := inf.draft(name, Analyze(groups[action]))
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("drafted configuration for %q: %w", name, err)
		}
		if action == "" {
			f.Default = cfg
			continue
		}
		f.Actions = append(f.Actions, cfg)
	}
	return f, nil
}

// InferFromSQLite samples the results table of a database.
func (inf *Inferrer) InferFromSQLite(dbPath string) (*configfile.File, error) {
	s := newSampler(inf.Config)
	err := ingest.StreamSQLiteRaw(dbPath, func(_, raw string) error {
		s.offer(raw)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sample sqlite: %w", err)
	}

	records := make([]any, 0, len(s.items))
	for i, item := range s.items {
		parsed, err := ingest.DecodeJSON([]byte(item.(string)))
		if err != nil {
			return nil, fmt.Errorf("parse sample %d: %w", i, err)
		}
		records = append(records, parsed)
	}
	return inf.InferFromRecords(records)
}

// InferFromFile samples a .json, .ndjson or .jsonl file.
func (inf *Inferrer) InferFromFile(path string) (*configfile.File, error) {
	s := newSampler(inf.Config)
	if err := ingest.StreamFile(path, func(_ int, rec any) error {
		s.offer(rec)
		return nil
	}); err != nil {
		return nil, err
	}
	return inf.InferFromRecords(s.items)
}

func (inf *Inferrer) draft(actionType string, p *Profile) *api.ActionConfig {
	cfg := &api.ActionConfig{ActionType: actionType}

	var arrayPath string
	if inf.Config.Arrays != api.ArrayModeNone {
		if arrays := p.ObjectArrays(); len(arrays) > 0 {
			arrayPath = arrays[0]
		}
	}

	taken := map[string]bool{}
	var leaves []string
	for _, path := range p.Paths() {
		if path != arrayPath {
			leaves = append(leaves, path)
		}
	}
	top := mappings(p, leaves, taken)

	if arrayPath == "" {
		cfg.Fields = top
		return cfg
	}

	arr := p.Fields[arrayPath]
	arrayField := api.FieldMapping{
		OutputName:            uniqueName(arr, taken),
		SourcePaths:           []string{arrayPath},
		OmitIfNotFound:        arr.Count() < p.Objects,
		ArrayExplosionTrigger: true,
	}
	cfg.ArrayExplosionField = arrayField.OutputName

	elems := p.Elements[arrayPath]
	if inf.Config.Arrays == api.ArrayModePreserve {
		cfg.PreserveArrays = true
		arrayField.ItemFields = mappings(elems, elems.Paths(), map[string]bool{})
		cfg.Fields = append(top, arrayField)
		return cfg
	}

	for _, m := range top {
		arrayField.ParentContextFields = append(arrayField.ParentContextFields, m.OutputName)
	}
	var items []api.FieldMapping
	for _, m := range mappings(elems, elems.Paths(), map[string]bool{}) {
		// Element keys override parent context keys on exploded items, so a
		// parent mapping already reads the element value.
		if taken[m.OutputName] {
			continue
		}
		taken[m.OutputName] = true
		items = append(items, m)
	}
	cfg.Fields = append(append(top, arrayField), items...)
	return cfg
}

// mappings turns the given leaf paths of p into field mappings, folding
// same-named paths that never co-occur into one mapping.
func mappings(p *Profile, paths []string, taken map[string]bool) []api.FieldMapping {
	byName := map[string][]*FieldStats{}
	var names []string
	for _, path := range paths {
		fs := p.Fields[path]
		if _, seen := byName[fs.Name]; !seen {
			names = append(names, fs.Name)
		}
		byName[fs.Name] = append(byName[fs.Name], fs)
	}

	var out []api.FieldMapping
	for _, name := range names {
		group := byName[name]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Count() > group[j].Count() })

		for len(group) > 0 {
			merged := []*FieldStats{group[0]}
			union := group[0].Present.Clone()
			var rest []*FieldStats
			for _, fs := range group[1:] {
				if roaring.And(union, fs.Present).IsEmpty() {
					merged = append(merged, fs)
					union.Or(fs.Present)
					continue
				}
				rest = append(rest, fs)
			}
			out = append(out, mapping(merged, union, p.Objects, taken))
			group = rest
		}
	}
	return out
}

func mapping(group []*FieldStats, union *roaring.Bitmap, total int, taken map[string]bool) api.FieldMapping {
	m := api.FieldMapping{
		OutputName:     uniqueName(group[0], taken),
		OmitIfNotFound: int(union.GetCardinality()) < total,
	}
	agg := &FieldStats{}
	for _, fs := range group {
		m.SourcePaths = append(m.SourcePaths, fs.Path)
		agg.Nulls += fs.Nulls
		agg.Bools += fs.Bools
		agg.Integers += fs.Integers
		agg.Floats += fs.Floats
		agg.Strings += fs.Strings
		agg.Dates += fs.Dates
		agg.UUIDs += fs.UUIDs
		agg.Arrays += fs.Arrays
		agg.Other += fs.Other
	}
	m.TargetType = guessType(agg)
	return m
}

// uniqueName picks the property name, or the whole path flattened with
// underscores when the name is already used.
func uniqueName(fs *FieldStats, taken map[string]bool) string {
	name := fs.Name
	if taken[name] {
		name = strings.NewReplacer("$", "", "['", "_", "']", "", ".", "_").Replace(fs.Path)
		name = strings.Trim(name, "_")
		for base, i := name, 2; taken[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
	}
	taken[name] = true
	return name
}

// guessType returns the narrowest type every sampled non-null value fits.
// Plain strings and mixed or structured values pass through untouched.
func guessType(fs *FieldStats) api.TargetType {
	values := fs.Bools + fs.Integers + fs.Floats + fs.Strings + fs.Arrays + fs.Other
	switch {
	case values == 0:
		return api.TypeNone
	case fs.Bools == values:
		return api.TypeBool
	case fs.Integers == values:
		return api.TypeLong
	case fs.Integers+fs.Floats == values:
		return api.TypeDouble
	case fs.Strings == values && fs.UUIDs == values:
		return api.TypeUUID
	case fs.Strings == values && fs.Dates == values:
		return api.TypeDateTime
	default:
		return api.TypeNone
	}
}

// sampler keeps a uniform reservoir of the offered items.
type sampler struct {
	size  int
	seen  int
	rng   *rand.Rand
	items []any
}

func newSampler(cfg Config) *sampler {
	size := cfg.SampleSize
	if size <= 0 {
		size = 1000
	}
	return &sampler{size: size, rng: rand.New(rand.NewSource(cfg.Seed)), items: make([]any, 0, size)}
}

func (s *sampler) offer(item any) {
	if s.seen < s.size {
		s.items = append(s.items, item)
	} else if j := s.rng.Intn(s.seen + 1); j < s.size {
		s.items[j] = item
	}
	s.seen++
}

// reservoirSample performs reservoir sampling on a slice.
func reservoirSample(records []any, k int, seed int64) []any {
	if len(records) <= k {
		return records
	}
	rng := rand.New(rand.NewSource(seed))
	reservoir := make([]any, k)
	copy(reservoir, records[:k])
	for i := k; i < len(records); i++ {
		j := rng.Intn(i + 1)
		if j < k {
			reservoir[j] = records[i]
		}
	}
	return reservoir
}
