package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
)

// KeySeparator delimits cache key segments.
const KeySeparator = "::"

// KeyEncoder produces the deterministic string form of an opaque entity key
// for cache addressing. Encodings must be stable across calls within one
// process so that equal keys always land on the same cache entry.
type KeyEncoder interface {
	EncodeKey(entityType string, key any) string
}

// defaultKeyEncoder derives stable encodings structurally: basic types print
// directly, composites recurse with sorted map keys, and anything else falls
// back to JSON. Entity type names are normalized to snake_case so reflected
// type names never leak separators into the key namespace.
type defaultKeyEncoder struct{}

// NewDefaultKeyEncoder creates the default structural key encoder.
func NewDefaultKeyEncoder() KeyEncoder {
	return &defaultKeyEncoder{}
}

// EncodeKey builds `entity_type::<encoded key>`.
func (e *defaultKeyEncoder) EncodeKey(entityType string, key any) string {
	return toSnake(entityType) + KeySeparator + e.encodeValue(key)
}

func (e *defaultKeyEncoder) encodeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return e.encodeValue(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return e.encodeSeq("slice", rv)

	case reflect.Array:
		return e.encodeSeq("array", rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return e.encodeMap(rv)

	case reflect.Struct:
		return e.encodeStruct(rv, rt)

	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", rt.Kind(), v)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return e.jsonFallback(v)
}

func (e *defaultKeyEncoder) encodeSeq(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = e.encodeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

// encodeMap emits key=value pairs sorted by encoded key so iteration order
// never changes the result.
func (e *defaultKeyEncoder) encodeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, e.encodeValue(iter.Key().Interface())+"="+e.encodeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (e *defaultKeyEncoder) encodeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+e.encodeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback covers types the structural walk cannot express. When even
// JSON fails, the type name keeps the key stable rather than panicking.
func (e *defaultKeyEncoder) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// toSnake converts s to snake_case using ASCII-aware rules, aggressively
// stripping punctuation (pointer stars, generic brackets) that can show up
// in reflected type names; leaving those in would break pattern-based
// invalidation and produce keys some tier backends reject.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
