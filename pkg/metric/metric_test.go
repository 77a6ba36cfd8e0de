package metric_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-agent/pkg/metric"
)

func TestNewDefaultsTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	m := metric.New("memory.heap_used", metric.Number(42), metric.TypeMemory)
	after := time.Now().UnixMilli()

	assert.Equal(t, "memory.heap_used", m.Name())
	assert.Equal(t, metric.TypeMemory, m.Type())
	assert.GreaterOrEqual(t, m.Timestamp(), before)
	assert.LessOrEqual(t, m.Timestamp(), after)

	v, ok := m.Value().Float()
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
	assert.Nil(t, m.Metadata())
}

func TestMetadataIsCopiedOnConstruction(t *testing.T) {
	md := map[string]any{"unit": "bytes", "samples": []float64{1, 2}}
	m := metric.New("memory.growth_rate", metric.Number(1), metric.TypeMemory, metric.WithMetadata(md))

	md["unit"] = "changed"
	md["samples"].([]float64)[0] = 99

	unit, ok := m.MetadataValue("unit")
	require.True(t, ok)
	assert.Equal(t, "bytes", unit)
	assert.Equal(t, []float64{1, 2}, m.Metadata()["samples"])
}

func TestMetadataDeepCopiesUncommonContainers(t *testing.T) {
	ints := []int32{1, 2}
	floats := []float32{0.5}
	raw := []uint8{7}
	nested := []map[string]any{{"a": 1}}
	labels := map[string]string{"core": "0"}
	matrix := [][]float64{{1, 2}}
	arr := [2]int{1, 2}
	md := map[string]any{
		"ints": ints, "floats": floats, "raw": raw, "nested": nested,
		"labels": labels, "matrix": matrix, "arr": arr, "none": nil,
	}
	m := metric.New("cpu.cores", metric.Number(2), metric.TypeCPU, metric.WithMetadata(md))
	cloned := metric.CloneBatch([]metric.Metric{m})[0]

	ints[0] = 99
	floats[0] = 9
	raw[0] = 0
	nested[0]["a"] = 99
	labels["core"] = "7"
	matrix[0][0] = 99

	for _, got := range []map[string]any{m.Metadata(), cloned.Metadata()} {
		assert.Equal(t, []int32{1, 2}, got["ints"])
		assert.Equal(t, []float32{0.5}, got["floats"])
		assert.Equal(t, []uint8{7}, got["raw"])
		assert.Equal(t, []map[string]any{{"a": 1}}, got["nested"])
		assert.Equal(t, map[string]string{"core": "0"}, got["labels"])
		assert.Equal(t, [][]float64{{1, 2}}, got["matrix"])
		assert.Equal(t, [2]int{1, 2}, got["arr"])
		assert.Nil(t, got["none"])
	}

	// 读取到的副本也与内部状态隔离
	m.Metadata()["ints"].([]int32)[1] = 42
	assert.Equal(t, []int32{1, 2}, m.Metadata()["ints"])
}

func TestStructValueDeepCopiesNestedSlices(t *testing.T) {
	buckets := []map[string]any{{"le": 0.1, "count": 3}}
	v := metric.Struct(map[string]any{"buckets": buckets, "ids": []int64{1}})
	buckets[0]["count"] = 99

	assert.Equal(t, []map[string]any{{"le": 0.1, "count": 3}}, v.Fields()["buckets"])
}

func TestMetadataGetterReturnsCopy(t *testing.T) {
	m := metric.New("cpu.usage", metric.Number(1), metric.TypeCPU,
		metric.WithMetadata(map[string]any{"core": "total"}))

	got := m.Metadata()
	got["core"] = "cpu0"

	assert.Equal(t, "total", m.Metadata()["core"])
}

func TestStructValueIsImmutable(t *testing.T) {
	fields := map[string]any{"p50": 1.0, "nested": map[string]any{"a": 1}}
	v := metric.Struct(fields)
	fields["p50"] = 2.0
	fields["nested"].(map[string]any)["a"] = 2

	got := v.Fields()
	assert.Equal(t, 1.0, got["p50"])
	assert.Equal(t, 1, got["nested"].(map[string]any)["a"])

	got["p50"] = 3.0
	assert.Equal(t, 1.0, v.Fields()["p50"])
}

func TestValueKinds(t *testing.T) {
	_, ok := metric.String("x").Float()
	assert.False(t, ok)

	s, ok := metric.String("x").Str()
	require.True(t, ok)
	assert.Equal(t, "x", s)

	assert.Equal(t, metric.KindNumber, metric.Int(uint64(7)).Kind())
	assert.True(t, metric.Int(7).Equal(metric.Number(7)))
	assert.False(t, metric.Number(7).Equal(metric.String("7")))
	assert.Nil(t, metric.Number(1).Fields())
}

func TestStructEqualComparesFieldTypes(t *testing.T) {
	assert.True(t, metric.Struct(map[string]any{"n": 1.0}).Equal(metric.Struct(map[string]any{"n": 1.0})))
	assert.False(t, metric.Struct(map[string]any{"n": 1}).Equal(metric.Struct(map[string]any{"n": 1.0})))
	assert.False(t, metric.Struct(map[string]any{"n": 1.0}).Equal(metric.Number(1)))
}

func TestCloneBatch(t *testing.T) {
	assert.NotNil(t, metric.CloneBatch(nil))
	assert.Empty(t, metric.CloneBatch(nil))

	in := []metric.Metric{
		metric.New("a", metric.Number(1), metric.TypeCPU),
		metric.New("b", metric.String("x"), metric.TypeEventLoop),
	}
	out := metric.CloneBatch(in)
	require.Len(t, out, 2)
	out[0] = metric.New("z", metric.Number(0), metric.TypeCPU)

	assert.Equal(t, "a", in[0].Name())
	assert.Equal(t, "b", out[1].Name())
}

func TestTypeValid(t *testing.T) {
	assert.True(t, metric.TypeMemory.Valid())
	assert.True(t, metric.TypeCPU.Valid())
	assert.True(t, metric.TypeEventLoop.Valid())
	assert.False(t, metric.Type("disk").Valid())
}

func TestMarshalJSON(t *testing.T) {
	m := metric.New("eventloop.lag", metric.Number(1.5), metric.TypeEventLoop,
		metric.WithTimestamp(1700000000000),
		metric.WithMetadata(map[string]any{"unit": "ms"}))

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"name":"eventloop.lag","value":1.5,"timestamp":1700000000000,"type":"eventloop","metadata":{"unit":"ms"}}`,
		string(raw))
}
