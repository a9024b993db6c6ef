// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formats lists the accepted format names.
var Formats = []string{"table", "json", "yaml"}

// Formatter writes a value in one output format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format. The empty string selects
// the table format.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return TableFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	case "yaml":
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q, want one of %s", format, strings.Join(Formats, ", "))
	}
}

// TableFormatter prints structs and maps as aligned key/value rows and
// slices of structs as a table with a header row. Control characters in
// values are quoted so that raw modem output stays on one row.
type TableFormatter struct{}

func (TableFormatter) Format(w io.Writer, data any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fmt.Fprintf(tw, "%s:\t%s\n", strings.ToUpper(t.Field(i).Name), cell(v.Field(i)))
		}
	case reflect.Map:
		keys := v.MapKeys()
		names := make(map[string]reflect.Value, len(keys))
		for _, k := range keys {
			names[fmt.Sprint(k.Interface())] = k
		}
		for _, name := range slices.Sorted(maps.Keys(names)) {
			fmt.Fprintf(tw, "%s:\t%s\n", name, cell(v.MapIndex(names[name])))
		}
	case reflect.Slice:
		if v.Len() == 0 {
			fmt.Fprintln(tw, "No results.")
			break
		}
		elem := v.Type().Elem()
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(tw, cell(v.Index(i)))
			}
			break
		}
		var header []string
		for i := 0; i < elem.NumField(); i++ {
			if elem.Field(i).IsExported() {
				header = append(header, strings.ToUpper(elem.Field(i).Name))
			}
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for i := 0; i < v.Len(); i++ {
			row := reflect.Indirect(v.Index(i))
			var cells []string
			for j := 0; j < elem.NumField(); j++ {
				if elem.Field(j).IsExported() {
					cells = append(cells, cell(row.Field(j)))
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	default:
		fmt.Fprintln(tw, data)
	}

	return tw.Flush()
}

func cell(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	s := fmt.Sprint(v.Interface())
	if strings.ContainsFunc(s, func(r rune) bool { return r < ' ' }) {
		return strconv.Quote(s)
	}
	return s
}

// JSONFormatter writes indented JSON.
type JSONFormatter struct{}

func (JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("format json: %w", err)
	}
	return nil
}

// YAMLFormatter writes YAML with two space indentation.
type YAMLFormatter struct{}

func (YAMLFormatter) Format(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("format yaml: %w", err)
	}
	return enc.Close()
}
