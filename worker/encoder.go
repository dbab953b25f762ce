package worker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// EncodeError reports a cell value that could not be rendered.
type EncodeError struct {
	Column string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding column %q: %v", e.Column, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// EncodeCSV renders rows as CSV. The header is the union of every row's
// columns in first-seen order; nested objects become dotted columns and
// missing cells are empty.
func EncodeCSV(rows []Row) (string, error) {
	var header []string
	seen := map[string]bool{}
	flat := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		cells := map[string]string{}
		var order []string
		for _, col := range r.columns() {
			if err := flatten(col, r.Values[col], cells, &order); err != nil {
				return "", err
			}
		}
		for _, col := range order {
			if !seen[col] {
				seen[col] = true
				header = append(header, col)
			}
		}
		flat = append(flat, cells)
	}
	if len(header) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", err
	}
	rec := make([]string, len(header))
	for _, cells := range flat {
		for i, col := range header {
			rec[i] = cells[col]
		}
		// A lone empty field would be written as a blank line, which readers skip.
		if len(rec) == 1 && rec[0] == "" {
			w.Flush()
			buf.WriteString("\"\"\n")
			continue
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r Row) columns() []string {
	if r.Columns != nil {
		return r.Columns
	}
	return sortedKeys(r.Values)
}

func flatten(col string, v any, cells map[string]string, order *[]string) error {
	if m, ok := v.(map[string]any); ok && len(m) > 0 {
		for _, k := range sortedKeys(m) {
			if err := flatten(col+"."+k, m[k], cells, order); err != nil {
				return err
			}
		}
		return nil
	}
	s, err := renderCell(v)
	if err != nil {
		return &EncodeError{Column: col, Err: err}
	}
	if _, dup := cells[col]; !dup {
		*order = append(*order, col)
	}
	cells[col] = s
	return nil
}

// renderCell formats scalars without scientific notation and JSON-encodes
// everything else.
func renderCell(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map && rv.Len() == 0 {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
