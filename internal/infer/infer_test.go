package infer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/configfile"
	"github.com/agentic-research/jflat/internal/ingest"
)

func decodeAll(t *testing.T, docs ...string) []any {
	t.Helper()
	out := make([]any, len(docs))
	for i, d := range docs {
		v, err := ingest.DecodeJSON([]byte(d))
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

func fieldNames(cfg *api.ActionConfig) []string {
	var out []string
	for _, f := range cfg.Fields {
		out = append(out, f.OutputName)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	p := Analyze(decodeAll(t,
		`{"id":"a","n":1,"when":"2024-01-15T10:00:00Z","tags":["x"],"lines":[{"sku":"A"},{"sku":"B"}]}`,
		`{"id":"b","n":2.5,"uid":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","lines":[{"sku":"C","qty":1}]}`,
		`[1,2]`,
	))

	assert.Equal(t, 2, p.Objects)
	assert.Equal(t, []string{"id", "lines", "n", "tags", "uid", "when"}, p.Paths())

	assert.Equal(t, 2, p.Fields["id"].Count())
	assert.Equal(t, 1, p.Fields["n"].Integers)
	assert.Equal(t, 1, p.Fields["n"].Floats)
	assert.Equal(t, 1, p.Fields["when"].Dates)
	assert.Equal(t, 1, p.Fields["uid"].UUIDs)
	assert.Equal(t, 1, p.Fields["tags"].Arrays)

	require.Contains(t, p.Elements, "lines")
	elems := p.Elements["lines"]
	assert.Equal(t, 3, elems.Objects)
	assert.Equal(t, 3, elems.Fields["sku"].Count())
	assert.Equal(t, 1, elems.Fields["qty"].Count())
	assert.Equal(t, []string{"lines"}, p.ObjectArrays())
}

func TestAnalyze_OddKeys(t *testing.T) {
	p := Analyze(decodeAll(t, `{"a b":{"c":1}}`))
	require.Len(t, p.Paths(), 1)
	path := p.Paths()[0]
	assert.Equal(t, "c", p.Fields[path].Name)

	v, err := ingest.NewEngine(nil).BuildOutput(decodeAll(t, `{"a b":{"c":1}}`)[0],
		&api.ActionConfig{ActionType: "x", Fields: []api.FieldMapping{{OutputName: "c", SourcePaths: []string{path}}}}, nil)
	require.NoError(t, err)
	got, _ := v.Get("c")
	assert.Equal(t, json.Number("1"), got)
}

func TestInferFromRecords_GroupsByActionType(t *testing.T) {
	records := decodeAll(t,
		`{"Action":"CreateOrder","OrderId":"1","Total":10}`,
		`{"Action":"CreateOrder","OrderId":"2","Total":12,"Note":"gift"}`,
		`{"Action":"CancelOrder","OrderId":"3","Reason":"late","At":"2024-02-01"}`,
		`{"id":7}`,
	)
	f, err := New(DefaultConfig()).InferFromRecords(records)
	require.NoError(t, err)

	require.Len(t, f.Actions, 2)
	assert.Equal(t, "CancelOrder", f.Actions[0].ActionType)
	assert.Equal(t, "CreateOrder", f.Actions[1].ActionType)
	require.NotNil(t, f.Default)
	assert.Equal(t, DefaultActionType, f.Default.ActionType)

	create := f.Actions[1]
	assert.Equal(t, []string{"Action", "Note", "OrderId", "Total"}, fieldNames(create))
	note, _ := create.Field("Note")
	assert.True(t, note.OmitIfNotFound)
	total, _ := create.Field("Total")
	assert.False(t, total.OmitIfNotFound)
	assert.Equal(t, api.TypeLong, total.TargetType)

	cancel := f.Actions[0]
	at, _ := cancel.Field("At")
	assert.Equal(t, api.TypeDateTime, at.TargetType)
}

func TestInferFromRecords_FoldsDisjointPaths(t *testing.T) {
	records := decodeAll(t,
		`{"order":{"id":"1"}}`,
		`{"order":{"id":"2"}}`,
		`{"legacy":{"id":"3"}}`,
		`{"order":{"id":"4"},"customer":{"id":"c"}}`,
	)
	f, err := New(DefaultConfig()).InferFromRecords(records)
	require.NoError(t, err)
	cfg := f.Default

	id, ok := cfg.Field("id")
	require.True(t, ok)
	assert.Equal(t, []string{"order.id", "legacy.id"}, id.SourcePaths)
	assert.False(t, id.OmitIfNotFound)

	// customer.id co-occurs with order.id and gets its own name
	other, ok := cfg.Field("customer_id")
	require.True(t, ok)
	assert.Equal(t, []string{"customer.id"}, other.SourcePaths)
	assert.True(t, other.OmitIfNotFound)
}

func TestInferFromRecords_Explode(t *testing.T) {
	records := decodeAll(t,
		`{"Action":"CreateOrder","OrderDetails":{"OrderId":"12345","Items":[{"Sku":"A","Qty":2},{"Sku":"B","Qty":1}]}}`,
		`{"Action":"CreateOrder","OrderDetails":{"OrderId":"12346","Items":[{"Sku":"C","Qty":5}]}}`,
	)
	cfg := DefaultConfig()
	cfg.Arrays = api.ArrayModeExplode
	f, err := New(cfg).InferFromRecords(records)
	require.NoError(t, err)
	require.Len(t, f.Actions, 1)

	action := f.Actions[0]
	assert.Equal(t, api.ArrayModeExplode, action.ArrayMode())
	assert.Equal(t, "Items", action.ArrayExplosionField)
	items, _ := action.Field("Items")
	assert.Equal(t, []string{"Action", "OrderId"}, items.ParentContextFields)

	reg := api.NewRegistry()
	require.NoError(t, reg.Register(action))
	res, err := ingest.NewEngine(reg).Process(records[0])
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	b, err := json.Marshal(res.Documents[1])
	require.NoError(t, err)
	assert.Equal(t, `{"Action":"CreateOrder","OrderId":"12345","Qty":1,"Sku":"B"}`, string(b))
}

func TestInferFromRecords_Preserve(t *testing.T) {
	records := decodeAll(t, `{"id":"i","lines":[{"sku":"A","qty":1}]}`)
	cfg := DefaultConfig()
	cfg.Arrays = api.ArrayModePreserve
	f, err := New(cfg).InferFromRecords(records)
	require.NoError(t, err)

	def := f.Default
	assert.Equal(t, api.ArrayModePreserve, def.ArrayMode())
	lines, ok := def.Field("lines")
	require.True(t, ok)
	require.Len(t, lines.ItemFields, 2)
	assert.Equal(t, "qty", lines.ItemFields[0].OutputName)
	assert.Equal(t, api.TypeLong, lines.ItemFields[0].TargetType)
}

func TestGuessType(t *testing.T) {
	tests := []struct {
		name string
		fs   FieldStats
		want api.TargetType
	}{
		{"only nulls", FieldStats{Nulls: 3}, api.TypeNone},
		{"bools", FieldStats{Bools: 2, Nulls: 1}, api.TypeBool},
		{"integers", FieldStats{Integers: 2}, api.TypeLong},
		{"mixed numbers", FieldStats{Integers: 2, Floats: 1}, api.TypeDouble},
		{"uuids", FieldStats{Strings: 2, UUIDs: 2}, api.TypeUUID},
		{"dates", FieldStats{Strings: 2, Dates: 2}, api.TypeDateTime},
		{"some dates", FieldStats{Strings: 2, Dates: 1}, api.TypeNone},
		{"mixed kinds", FieldStats{Strings: 1, Integers: 1}, api.TypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessType(&tt.fs))
		})
	}
}

func TestReservoirSample(t *testing.T) {
	records := make([]any, 100)
	for i := range records {
		records[i] = i
	}
	sample := reservoirSample(records, 10, 1)
	assert.Len(t, sample, 10)
	assert.Equal(t, sample, reservoirSample(records, 10, 1))
	assert.Len(t, reservoirSample(records[:5], 10, 1), 5)
}

func TestInferFromSQLiteAndFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE results (id TEXT PRIMARY KEY, record TEXT)")
	require.NoError(t, err)
	var lines []byte
	for i := 0; i < 20; i++ {
		rec := fmt.Sprintf(`{"Action":"Ping","seq":%d}`, i)
		_, err = db.Exec("INSERT INTO results (id, record) VALUES (?, ?)", fmt.Sprint(i), rec)
		require.NoError(t, err)
		lines = append(lines, rec+"\n"...)
	}
	require.NoError(t, db.Close())

	jsonl := filepath.Join(dir, "pings.jsonl")
	require.NoError(t, os.WriteFile(jsonl, lines, 0o644))

	inf := New(Config{SampleSize: 5, Seed: 3})
	for name, load := range map[string]func() (*configfile.File, error){
		"sqlite": func() (*configfile.File, error) { return inf.InferFromSQLite(dbPath) },
		"file":   func() (*configfile.File, error) { return inf.InferFromFile(jsonl) },
	} {
		t.Run(name, func(t *testing.T) {
			f, err := load()
			require.NoError(t, err)
			reg, err := f.Registry()
			require.NoError(t, err)
			assert.Equal(t, []string{"Ping"}, reg.ActionTypes())
		})
	}
}
