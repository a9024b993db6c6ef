package output

import (
	"bytes"
	"strings"
	"testing"
)

type result struct {
	Status int    `json:"status" yaml:"status"`
	Body   string `json:"body" yaml:"body"`
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		want    Formatter
		wantErr bool
	}{
		{format: "", want: TableFormatter{}},
		{format: "table", want: TableFormatter{}},
		{format: "JSON", want: JSONFormatter{}},
		{format: "yaml", want: YAMLFormatter{}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := NewFormatter(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NewFormatter(%q) = %T, want %T", tt.format, got, tt.want)
			}
		})
	}
}

func TestTableFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want []string
	}{
		{
			name: "struct",
			data: result{Status: 200, Body: "hello\r\n"},
			want: []string{"STATUS:  200", `BODY:    "hello\r\n"`},
		},
		{
			name: "pointer to struct",
			data: &result{Status: 404},
			want: []string{"STATUS:  404"},
		},
		{
			name: "map sorted by key",
			data: map[string]string{"mac": "aa:bb", "ip": "10.0.0.2"},
			want: []string{"ip:   10.0.0.2\nmac:  aa:bb"},
		},
		{
			name: "slice of structs",
			data: []result{{Status: 200, Body: "a"}, {Status: 500, Body: "b"}},
			want: []string{"STATUS  BODY\n200     a\n500     b"},
		},
		{
			name: "empty slice",
			data: []result{},
			want: []string{"No results."},
		},
		{
			name: "scalar",
			data: "ready",
			want: []string{"ready"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (TableFormatter{}).Format(&buf, tt.data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output %q does not contain %q", buf.String(), want)
				}
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Format(&buf, result{Status: 200, Body: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{\n  \"status\": 200,\n  \"body\": \"ok\"\n}\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	if err := (JSONFormatter{}).Format(&buf, make(chan int)); err == nil {
		t.Error("expected error for unsupported value")
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Format(&buf, result{Status: 200, Body: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "status: 200\nbody: ok\n" {
		t.Errorf("got %q", buf.String())
	}
}
