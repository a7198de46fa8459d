package capture

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Format renders one console-style emission. Structured arguments (maps,
// slices, arrays, structs, and pointers to them) are rendered as JSON
// indented by two spaces; everything else uses fmt.Sprint. Arguments are
// joined by a single space.
func Format(args ...any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatArg(arg)
	}
	return strings.Join(parts, " ")
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}

	if !structured(reflect.ValueOf(arg)) {
		return fmt.Sprint(arg)
	}
	b, err := json.MarshalIndent(arg, "", "  ")
	if err != nil {
		return fmt.Sprint(arg)
	}
	return string(b)
}

func structured(v reflect.Value) bool {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}
