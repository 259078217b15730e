package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

func render(t *testing.T, f *TableFormatter, data any) []string {
	t.Helper()
	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func fields(line string) []string { return strings.Fields(line) }

func TestTableFormatter_Table(t *testing.T) {
	tbl := &Table{}
	tbl.SetHeaders("KIND", "COUNT")
	tbl.AddRow("buyer", "3")
	tbl.AddRow("anonymous", "1")

	lines := render(t, &TableFormatter{}, tbl)
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if got := fields(lines[2]); !reflect.DeepEqual(got, []string{"anonymous", "1"}) {
		t.Errorf("row = %q", got)
	}

	lines = render(t, &TableFormatter{NoHeaders: true}, *tbl)
	if len(lines) != 2 || fields(lines[0])[0] != "buyer" {
		t.Errorf("no-headers lines = %q", lines)
	}
}

type row struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule" table:"wide"`
	Token   string `json:"-"`
	note    string
}

func TestTableFormatter_SliceOfStructs(t *testing.T) {
	data := []row{
		{Path: "/customer", Allowed: true, Rule: "/customer/*", Token: "t", note: "n"},
		{Path: "/admin", Allowed: false},
	}

	lines := render(t, &TableFormatter{}, data)
	if got := fields(lines[0]); !reflect.DeepEqual(got, []string{"PATH", "ALLOWED"}) {
		t.Errorf("headers = %q", got)
	}
	if got := fields(lines[1]); !reflect.DeepEqual(got, []string{"/customer", "true"}) {
		t.Errorf("row = %q", got)
	}

	lines = render(t, &TableFormatter{Wide: true}, data)
	if got := fields(lines[0]); !reflect.DeepEqual(got, []string{"PATH", "ALLOWED", "RULE"}) {
		t.Errorf("wide headers = %q", got)
	}
	if got := fields(lines[2]); !reflect.DeepEqual(got, []string{"/admin", "false", "-"}) {
		t.Errorf("wide row = %q", got)
	}
}

func TestTableFormatter_FlattensEmbedded(t *testing.T) {
	type outer struct {
		Path string `json:"path"`
		Inner
	}
	data := outer{Path: "/seller", Inner: Inner{Allowed: false, Reason: "kind_not_allowed"}}

	lines := render(t, &TableFormatter{}, data)
	want := [][]string{
		{"FIELD", "VALUE"},
		{"path", "/seller"},
		{"allowed", "false"},
		{"reason", "kind_not_allowed"},
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i, w := range want {
		if got := fields(lines[i]); !reflect.DeepEqual(got, w) {
			t.Errorf("line %d = %q, want %q", i, got, w)
		}
	}
}

// Inner is exported so that it can be embedded and still walked.
type Inner struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func TestTableFormatter_MapSorted(t *testing.T) {
	lines := render(t, &TableFormatter{}, map[string]int{"merchant": 2, "buyer": 5})
	if got := fields(lines[1]); !reflect.DeepEqual(got, []string{"buyer", "5"}) {
		t.Errorf("first row = %q", got)
	}
}

func TestTableFormatter_EmptyAndNil(t *testing.T) {
	var buf bytes.Buffer
	f := &TableFormatter{}
	if err := f.Format(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("nil: %q, %v", buf.String(), err)
	}
	if err := f.Format(&buf, []row{}); err != nil || buf.Len() != 0 {
		t.Errorf("empty slice: %q, %v", buf.String(), err)
	}
}

func TestTableFormatter_FallbackToJSON(t *testing.T) {
	lines := render(t, &TableFormatter{}, 42)
	if lines[0] != "42" {
		t.Errorf("fallback = %q", lines)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	str := "x"
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "buyer", "buyer"},
		{"empty string", "", "-"},
		{"int", int64(900), "900"},
		{"bool", true, "true"},
		{"float", 0.5, "0.50"},
		{"time", ts, "2024-01-02 03:04:05"},
		{"zero time", time.Time{}, "-"},
		{"duration", 90*time.Second + 300*time.Millisecond, "1m30s"},
		{"strings", []string{"a", "b"}, "a,b"},
		{"ints", []int{1, 2}, "[2 items]"},
		{"empty slice", []int{}, "-"},
		{"map", map[string]int{"a": 1}, "{1 keys}"},
		{"pointer", &str, "x"},
		{"nil pointer", (*string)(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if got := formatValue(reflect.Value{}); got != "" {
		t.Errorf("invalid value = %q", got)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"RetryAfter": "Retry_After",
		"total":      "total",
		"by_kind":    "by_kind",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
