package ingest

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/accum"
)

const orderInput = `{"Action":"CreateOrder","OrderDetails":{"OrderId":"12345","Items":[{"Sku":"A","Qty":2},{"Sku":"B","Qty":1}]}}`

func orderConfig() *api.ActionConfig {
	return api.NewActionBuilder("CreateOrder").
		Map("OrderId", "OrderDetails.OrderId").
		Explode("Items", []string{"OrderDetails.Items"}, "OrderId").
		Map("Sku", "Sku").
		Typed("Qty", api.TypeInteger, "Qty").
		MustBuild()
}

func decodeDoc(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func keys(d *api.Document) []string {
	var out []string
	for p := d.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

func encode(t *testing.T, d *api.Document) string {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return string(b)
}

func TestEngine_ExplodesOrderItems(t *testing.T) {
	e := NewEngine(nil)

	docs, err := e.ParseString(orderInput, orderConfig(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, `{"OrderId":"12345","Sku":"A","Qty":2}`, encode(t, docs[0]))
	assert.Equal(t, `{"OrderId":"12345","Sku":"B","Qty":1}`, encode(t, docs[1]))

	qty, ok := docs[0].Get("Qty")
	require.True(t, ok)
	assert.Equal(t, int64(2), qty)
}

func TestEngine_ProcessUsesRegistry(t *testing.T) {
	reg := api.NewRegistry()
	require.NoError(t, reg.Register(orderConfig()))
	e := NewEngine(reg)

	res, err := e.ProcessString(orderInput)
	require.NoError(t, err)
	assert.Equal(t, "CreateOrder", res.ActionType)
	assert.Len(t, res.Documents, 2)
	assert.Empty(t, res.Errors)

	t.Run("unknown action without default", func(t *testing.T) {
		res, err := e.ProcessString(`{"Action":"Refund"}`)
		require.NoError(t, err)
		assert.Empty(t, res.Documents)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, api.KindGeneral, res.Errors[0].Kind)
		assert.Equal(t, "Refund", res.Errors[0].Value)
	})

	t.Run("unknown action falls back to default", func(t *testing.T) {
		require.NoError(t, reg.SetDefault(api.NewActionBuilder("any").Map("Action", "Action").MustBuild()))
		res, err := e.ProcessString(`{"Action":"Refund","x":1}`)
		require.NoError(t, err)
		require.Len(t, res.Documents, 1)
		assert.Equal(t, `{"Action":"Refund"}`, encode(t, res.Documents[0]))
	})

	t.Run("malformed input", func(t *testing.T) {
		res, err := e.ProcessString(`{"Action":`)
		require.NoError(t, err)
		assert.Empty(t, res.Documents)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, api.KindParsing, res.Errors[0].Kind)
	})
}

func TestEngine_CustomActionTypeField(t *testing.T) {
	reg := api.NewRegistry()
	require.NoError(t, reg.Register(api.NewActionBuilder("ping").Map("id", "id").MustBuild()))
	e := NewEngine(reg, WithActionTypeField("meta.kind"))

	res, err := e.ProcessString(`{"meta":{"kind":"ping"},"id":7}`)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, `{"id":7}`, encode(t, res.Documents[0]))
}

func TestEngine_OutputFollowsDeclarationOrder(t *testing.T) {
	cfg := api.NewActionBuilder("order").
		Map("z", "a").
		Map("a", "z").
		Map("m", "missing").Optional().
		Map("b", "b").
		MustBuild()

	d, err := NewEngine(nil).BuildOutput(decodeDoc(t, `{"b":3,"a":1,"z":2}`), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b"}, keys(d))
	assert.Equal(t, `{"z":1,"a":2,"b":3}`, encode(t, d))
}

func TestEngine_ExtractField(t *testing.T) {
	e := NewEngine(nil)
	doc := decodeDoc(t, `{"primary":null,"secondary":"s","flag":"yes","n":"12"}`)

	t.Run("first non-null path wins", func(t *testing.T) {
		m := &api.FieldMapping{OutputName: "v", SourcePaths: []string{"primary", "secondary"}}
		v, ok, err := e.ExtractField(doc, m, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "s", v)
	})

	t.Run("default when absent", func(t *testing.T) {
		m := &api.FieldMapping{OutputName: "v", SourcePaths: []string{"nope"}, Default: "d"}
		v, ok, err := e.ExtractField(doc, m, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "d", v)
	})

	t.Run("default is converted", func(t *testing.T) {
		m := &api.FieldMapping{OutputName: "v", SourcePaths: []string{"nope"}, Default: "41", TargetType: api.TypeLong}
		v, ok, err := e.ExtractField(doc, m, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(41), v)
	})

	t.Run("absent without default", func(t *testing.T) {
		m := &api.FieldMapping{OutputName: "v", SourcePaths: []string{"primary"}}
		v, ok, err := e.ExtractField(doc, m, nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("typed", func(t *testing.T) {
		m := &api.FieldMapping{OutputName: "v", SourcePaths: []string{"n"}, TargetType: api.TypeInteger}
		v, ok, err := e.ExtractField(doc, m, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(12), v)
	})
}

func TestEngine_NullKeyIsWrittenUnlessOmitted(t *testing.T) {
	cfg := api.NewActionBuilder("nulls").
		Map("kept", "missing").
		Map("dropped", "missing").Optional().
		MustBuild()

	d, err := NewEngine(nil).BuildOutput(decodeDoc(t, `{}`), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"kept":null}`, encode(t, d))
}

func TestEngine_PassThroughKeepsValues(t *testing.T) {
	cfg := api.NewActionBuilder("pass").
		Map("big", "big").
		Map("dec", "dec").
		Map("s", "s").
		Map("b", "b").
		MustBuild()

	d, err := NewEngine(nil).BuildOutput(decodeDoc(t, `{"big":12345678901234567890,"dec":1.50,"s":"xé","b":false}`), cfg, nil)
	require.NoError(t, err)

	big, _ := d.Get("big")
	assert.Equal(t, json.Number("12345678901234567890"), big)
	dec, _ := d.Get("dec")
	assert.Equal(t, json.Number("1.50"), dec)
	assert.Equal(t, `{"big":12345678901234567890,"dec":1.50,"s":"xé","b":false}`, encode(t, d))
}

func TestEngine_ToleratedConversionFallsBackToDefault(t *testing.T) {
	cfg := api.NewActionBuilder("tolerant").
		Typed("Count", api.TypeInteger, "count").Default(0).
		Tolerate("Count").
		MustBuild()

	acc := accum.New(cfg)
	docs, err := NewEngine(nil).ParseString(`{"count":"not-a-number"}`, cfg, acc)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	v, ok := docs[0].Get("Count")
	require.True(t, ok)
	assert.Equal(t, int64(0), v)
	assert.Empty(t, acc.ForField("Count"))
	assert.Equal(t, 0, acc.Len())
}

func TestEngine_ConversionErrorIsAccumulated(t *testing.T) {
	cfg := api.NewActionBuilder("lenient").
		Typed("Count", api.TypeInteger, "count").Default(-1).
		Map("Name", "name").
		MustBuild()

	res, err := NewEngine(nil).Transform(decodeDoc(t, `{"count":"not-a-number","name":"n"}`), cfg)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, `{"Count":-1,"Name":"n"}`, encode(t, res.Documents[0]))

	require.Len(t, res.Errors, 1)
	pe := res.Errors[0]
	assert.Equal(t, api.KindTypeConversion, pe.Kind)
	assert.Equal(t, "Count", pe.Field)
	assert.Equal(t, "count", pe.Path)
	assert.Equal(t, "not-a-number", pe.Value)
	assert.Equal(t, api.TypeInteger, pe.TargetType)
}

func TestEngine_FailFastAbortsBeforeOutput(t *testing.T) {
	cfg := api.NewActionBuilder("strict").
		Map("Name", "name").
		Typed("Count", api.TypeInteger, "count").Default(0).
		FailFast(true).
		MustBuild()

	e := NewEngine(nil)
	docs, err := e.ParseString(`{"name":"n","count":"not-a-number"}`, cfg, nil)
	require.Error(t, err)
	assert.Nil(t, docs)

	agg, ok := api.AsAggregate(err)
	require.True(t, ok)
	require.Len(t, agg.Errors, 1)
	assert.Equal(t, api.KindTypeConversion, agg.Errors[0].Kind)

	res, err := e.Transform(decodeDoc(t, `{"name":"n","count":"not-a-number"}`), cfg)
	require.Error(t, err)
	assert.Nil(t, res.Documents)
	assert.Len(t, res.Errors, 1)
}

func TestEngine_FailFastOnExplodedItem(t *testing.T) {
	cfg := api.NewActionBuilder("strict-items").
		Explode("Items", []string{"items"}).
		Typed("Qty", api.TypeInteger, "qty").
		FailFast(true).
		MustBuild()

	docs, err := NewEngine(nil).ParseString(`{"items":[{"qty":1},{"qty":"x"},{"qty":3}]}`, cfg, nil)
	require.Error(t, err)
	assert.Nil(t, docs)
}

func TestEngine_ParseErrors(t *testing.T) {
	cfg := api.NewActionBuilder("p").Map("a", "a").MustBuild()
	e := NewEngine(nil)

	t.Run("malformed string", func(t *testing.T) {
		acc := accum.New(cfg)
		docs, err := e.ParseString(`{"a":`, cfg, acc)
		require.NoError(t, err)
		assert.Empty(t, docs)
		require.Equal(t, 1, acc.Len())
		assert.Equal(t, api.KindParsing, acc.Errors()[0].Kind)
	})

	t.Run("non-object root", func(t *testing.T) {
		acc := accum.New(cfg)
		docs, err := e.ParseString(`[1,2]`, cfg, acc)
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.Equal(t, 1, acc.Len())
	})

	t.Run("fail fast escalates", func(t *testing.T) {
		strict := *cfg
		strict.FailFast = true
		_, err := e.ParseString(`not json`, &strict, nil)
		require.Error(t, err)
		agg, ok := api.AsAggregate(err)
		require.True(t, ok)
		assert.Equal(t, []api.ErrorKind{api.KindParsing}, agg.Kinds())
	})
}

func TestEngine_DetermineActionType(t *testing.T) {
	e := NewEngine(nil)
	tests := []struct {
		name  string
		doc   string
		field string
		want  string
		ok    bool
	}{
		{"string", `{"Action":"CreateOrder"}`, "Action", "CreateOrder", true},
		{"number", `{"Action":42}`, "Action", "42", true},
		{"nested", `{"meta":{"type":"x"}}`, "meta.type", "x", true},
		{"absent", `{}`, "Action", "", false},
		{"null", `{"Action":null}`, "Action", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.DetermineActionType(decodeDoc(t, tt.doc), tt.field)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_ConcurrentPassesKeepSeparateErrors(t *testing.T) {
	cfg := api.NewActionBuilder("c").
		Typed("n", api.TypeInteger, "n").
		MustBuild()
	e := NewEngine(nil)

	good, bad := decodeDoc(t, `{"n":1}`), decodeDoc(t, `{"n":"bad"}`)

	const n = 32
	results := make([]*Result, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			input := good
			if i%2 == 1 {
				input = bad
			}
			res, err := e.Transform(input, cfg)
			assert.NoError(t, err)
			results[i] = res
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for i, res := range results {
		if i%2 == 1 {
			assert.Len(t, res.Errors, 1, "pass %d", i)
		} else {
			assert.Empty(t, res.Errors, "pass %d", i)
		}
	}
}
