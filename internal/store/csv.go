// Package store reads and writes the pipeline's flat CSV tables.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// ErrHeaderMismatch is returned when a CSV header does not match the table columns
var ErrHeaderMismatch = errors.New("csv header mismatch")

// Header returns the column names of T, taken from its csv struct tags
func Header[T any]() []string {
	var zero T
	t := reflect.TypeOf(zero)
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := t.Field(i).Tag.Get("csv"); name != "" && name != "-" {
			cols = append(cols, name)
		}
	}
	return cols
}

// fieldIndexes maps csv column names to struct field indexes
func fieldIndexes(t reflect.Type) map[string]int {
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := t.Field(i).Tag.Get("csv"); name != "" && name != "-" {
			idx[name] = i
		}
	}
	return idx
}

// ReadTable reads every row of a CSV file into T. A missing file yields no rows.
func ReadTable[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	rows, err := DecodeTable[T](file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// DecodeTable decodes CSV data with a header line into T
func DecodeTable[T any](r io.Reader) ([]T, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	// Strip a UTF-8 BOM left behind by spreadsheet exports
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var zero T
	t := reflect.TypeOf(zero)
	idx := fieldIndexes(t)

	want := Header[T]()
	if len(header) != len(want) {
		return nil, fmt.Errorf("%w: got %d columns, want %d (%s)", ErrHeaderMismatch, len(header), len(want), strings.Join(want, ","))
	}
	for _, col := range header {
		if _, ok := idx[strings.TrimSpace(col)]; !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrHeaderMismatch, col)
		}
	}

	var out []T
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		v := reflect.New(t).Elem()
		for i, col := range header {
			if err := setField(v.Field(idx[strings.TrimSpace(col)]), record[i]); err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, col, err)
			}
		}
		out = append(out, v.Interface().(T))
	}
	return out, nil
}

// EncodeTable writes rows as CSV with a header line
func EncodeTable[T any](w io.Writer, rows []T) error {
	writer := csv.NewWriter(w)

	header := Header[T]()
	if err := writer.Write(header); err != nil {
		return err
	}

	var zero T
	idx := fieldIndexes(reflect.TypeOf(zero))

	for _, row := range rows {
		v := reflect.ValueOf(row)
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = formatField(v.Field(idx[col]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteTable atomically replaces path with the given rows
func WriteTable[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeTable(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func setField(f reflect.Value, value string) error {
	raw := strings.TrimSpace(value)

	if f.Kind() == reflect.Ptr {
		if raw == "" {
			f.Set(reflect.Zero(f.Type()))
			return nil
		}
		p := reflect.New(f.Type().Elem())
		if err := setField(p.Elem(), raw); err != nil {
			return err
		}
		f.Set(p)
		return nil
	}

	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Float64, reflect.Float32:
		if raw == "" {
			f.SetFloat(0)
			return nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		f.SetFloat(n)
	case reflect.Int, reflect.Int64, reflect.Int32:
		if raw == "" {
			f.SetInt(0)
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		f.SetInt(n)
	case reflect.Bool:
		if raw == "" {
			f.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		f.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

func formatField(f reflect.Value) string {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return ""
		}
		return formatField(f.Elem())
	}

	switch f.Kind() {
	case reflect.String:
		return f.String()
	case reflect.Float64, reflect.Float32:
		return strconv.FormatFloat(f.Float(), 'f', -1, 64)
	case reflect.Int, reflect.Int64, reflect.Int32:
		return strconv.FormatInt(f.Int(), 10)
	case reflect.Bool:
		return strconv.FormatBool(f.Bool())
	}
	return fmt.Sprint(f.Interface())
}
