package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// StructToMap converts a struct (or pointer to struct) into a map keyed by the
// json names of its exported fields. Field values are kept as they are, so
// time.Time and nested structs survive untouched. A map input is copied.
func StructToMap(record any) (map[string]any, error) {
	if m, ok := record.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}

	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() == reflect.Map && val.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	typ := val.Type()
	result := make(map[string]any, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name, omitEmpty, ok := jsonName(field)
		if !ok {
			continue
		}
		fv := val.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		result[name] = fv.Interface()
	}
	return result, nil
}

// MapToStruct converts a map into a new T through a JSON round trip. T must be a
// struct or a pointer to a struct.
func MapToStruct[T any](input map[string]any) (T, error) {
	var zero T
	if input == nil {
		return zero, fmt.Errorf("MapToStruct: input map cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("MapToStruct: generic type T must be a struct type")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("MapToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to marshal input map to JSON: %w", err)
	}
	var result T
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to unmarshal JSON to target struct: %w", err)
	}
	return result, nil
}

// FieldNames lists the json names of T's exported fields in declaration order.
// Typed output schemas use it as their column allowlist.
func FieldNames[T any]() []string {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		if name, _, ok := jsonName(typ.Field(i)); ok {
			names = append(names, name)
		}
	}
	return names
}

func jsonName(field reflect.StructField) (string, bool, bool) {
	if !field.IsExported() {
		return "", false, false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, strings.Contains(opts, "omitempty"), true
}
