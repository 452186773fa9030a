package report

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// NoData is returned instead of an empty document when a report has no
// rows to export.
const NoData = "No data available"

// MarshalCSV renders a slice of uniform record structs as comma-delimited
// text: a header row taken from the first record's json tags, then one
// row per record. Nested values (structs, maps, slices) are JSON-encoded
// and quote-escaped; strings containing a comma or quote are wrapped in
// quotes with internal quotes doubled.
func MarshalCSV(rows any) (string, error) {
	v := reflect.ValueOf(rows)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice {
		return "", fmt.Errorf("csv: expected a slice of records, got %s", v.Kind())
	}
	if v.Len() == 0 {
		return NoData, nil
	}

	elem := v.Index(0).Type()
	if elem.Kind() != reflect.Struct {
		return "", fmt.Errorf("csv: expected struct records, got %s", elem.Kind())
	}

	type column struct {
		name  string
		index int
	}
	var columns []column
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		columns = append(columns, column{name: name, index: i})
	}

	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.name)
	}

	for i := 0; i < v.Len(); i++ {
		b.WriteByte('\n')
		rec := v.Index(i)
		for j, c := range columns {
			if j > 0 {
				b.WriteByte(',')
			}
			cell, err := formatCell(rec.Field(c.index))
			if err != nil {
				return "", err
			}
			b.WriteString(cell)
		}
	}
	return b.String(), nil
}

func formatCell(v reflect.Value) (string, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		return quoteIfNeeded(v.String()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		// Types with a string form (uuid.UUID, time.Time) export as that
		// form; anything else is embedded as escaped JSON.
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return quoteIfNeeded(s.String()), nil
		}
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return "", fmt.Errorf("csv: encode nested value: %w", err)
		}
		return `"` + strings.ReplaceAll(string(data), `"`, `""`) + `"`, nil
	default:
		return fmt.Sprint(v.Interface()), nil
	}
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, `,"`) {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
