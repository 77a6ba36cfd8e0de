package metric

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Kind 指标值的种类（封闭集合）
type Kind uint8

const (
	KindNumber Kind = iota + 1 // 数值
	KindString                 // 字符串
	KindStruct                 // 结构化（map）
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Value 指标值：数值 / 字符串 / 结构化 三选一，构造后不可修改
type Value struct {
	kind   Kind
	num    float64
	str    string
	fields map[string]any
}

// Number 构造数值型指标值
func Number(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// Int 整型便捷构造（内部统一存 float64）
func Int[T ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](v T) Value {
	return Number(float64(v))
}

// String 构造字符串型指标值
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Struct 构造结构化指标值，入参 map 会被深拷贝
func Struct(fields map[string]any) Value {
	return Value{kind: KindStruct, fields: cloneMap(fields)}
}

func (v Value) Kind() Kind { return v.kind }

// Float 数值型返回 (值, true)，其它种类返回 (0, false)
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str 字符串型返回 (值, true)
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Fields 结构化值的副本；非结构化返回 nil
func (v Value) Fields() map[string]any {
	if v.kind != KindStruct {
		return nil
	}
	return cloneMap(v.fields)
}

// Interface 以 any 形式返回（副本）
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindStruct:
		return cloneMap(v.fields)
	default:
		return nil
	}
}

// Equal 按值比较，结构化值要求字段类型也一致
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindString:
		return v.str == o.str
	case KindStruct:
		return reflect.DeepEqual(v.fields, o.fields)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return v.str
	case KindStruct:
		return fmt.Sprint(v.fields)
	default:
		return "<nil>"
	}
}

// cloneMap 深拷贝 map[string]any，嵌套的 map、切片、数组逐层复制
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneAny(t[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []int64:
		return slices.Clone(t)
	case []uint64:
		return slices.Clone(t)
	case []bool:
		return slices.Clone(t)
	case nil:
		return nil
	default:
		return cloneReflect(reflect.ValueOf(v)).Interface()
	}
}

// cloneReflect 其它切片、数组、map 类型的兜底深拷贝，保持原类型
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneReflect(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneReflect(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(cloneReflect(rv.Elem()))
		return out
	default:
		return rv
	}
}
