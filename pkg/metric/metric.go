// Package metric 定义采集结果的不可变值对象 Metric。
//
// Metric 的字段全部为私有字段，只能通过构造函数创建；metadata 与结构化值在构造、读取、
// 克隆时都会深拷贝，调用方后续修改自己的 map 不会影响已经发布出去的批次。
package metric

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type 指标类别
type Type string

const (
	TypeMemory    Type = "memory"
	TypeCPU       Type = "cpu"
	TypeEventLoop Type = "eventloop"
)

// Valid 是否为已知类别
func (t Type) Valid() bool {
	switch t {
	case TypeMemory, TypeCPU, TypeEventLoop:
		return true
	}
	return false
}

// Metric 单条指标（命名约定 category.measurement）
type Metric struct {
	name      string
	value     Value
	timestamp int64 // 毫秒时间戳
	typ       Type
	metadata  map[string]any
}

// Option 构造选项
type Option func(*Metric)

// WithTimestamp 指定毫秒时间戳（默认取当前时间）
func WithTimestamp(ms int64) Option {
	return func(m *Metric) { m.timestamp = ms }
}

// At 以 time.Time 指定时间戳
func At(t time.Time) Option {
	return func(m *Metric) { m.timestamp = t.UnixMilli() }
}

// WithMetadata 附加元数据（深拷贝）
func WithMetadata(md map[string]any) Option {
	return func(m *Metric) { m.metadata = cloneMap(md) }
}

// New 创建指标
func New(name string, value Value, typ Type, opts ...Option) Metric {
	m := Metric{
		name:      name,
		value:     value,
		timestamp: time.Now().UnixMilli(),
		typ:       typ,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Metric) Name() string { return m.name }

func (m Metric) Type() Type { return m.typ }

// Value 返回值（结构化值在读取 Fields 时再拷贝）
func (m Metric) Value() Value { return m.value }

// Timestamp 毫秒时间戳
func (m Metric) Timestamp() int64 { return m.timestamp }

// Metadata 元数据副本，无元数据时返回 nil
func (m Metric) Metadata() map[string]any { return cloneMap(m.metadata) }

// MetadataValue 读取单个元数据项（副本）
func (m Metric) MetadataValue(key string) (any, bool) {
	v, ok := m.metadata[key]
	if !ok {
		return nil, false
	}
	return cloneAny(v), true
}

// Clone 深拷贝
func (m Metric) Clone() Metric {
	out := m
	out.metadata = cloneMap(m.metadata)
	if m.value.kind == KindStruct {
		out.value.fields = cloneMap(m.value.fields)
	}
	return out
}

// CloneBatch 批量深拷贝；nil 输入返回空切片（空批次也是有效批次）
func CloneBatch(batch []Metric) []Metric {
	out := make([]Metric, len(batch))
	for i := range batch {
		out[i] = batch[i].Clone()
	}
	return out
}

// jsonMetric 对外序列化结构
type jsonMetric struct {
	Name      string         `json:"name"`
	Value     any            `json:"value"`
	Timestamp int64          `json:"timestamp"`
	Type      Type           `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON 实现 json.Marshaler
func (m Metric) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMetric{
		Name:      m.name,
		Value:     m.value.Interface(),
		Timestamp: m.timestamp,
		Type:      m.typ,
		Metadata:  m.metadata,
	})
}
