package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON, false).(*JSONFormatter); !ok {
		t.Error("json: wrong formatter")
	}
	if _, ok := NewFormatter(FormatYAML, false).(*YAMLFormatter); !ok {
		t.Error("yaml: wrong formatter")
	}
	tf, ok := NewFormatter("unknown", true).(*TableFormatter)
	if !ok || !tf.Wide {
		t.Errorf("default formatter = %#v", tf)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"", FormatTable, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

type sample struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Secret    string   `json:"-"`
	Grants    []string `json:"grants,omitempty"`
	Attempts  int      `json:"attempts"`
	Ambiguous string   `json:"ambiguous"`
}

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	err := (&JSONFormatter{}).Format(&buf, sample{ID: "b-1", Kind: "buyer", Secret: "s", Attempts: 2})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"id": "b-1"`, `"attempts": 2`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Secret") || strings.Contains(out, `"s"`) {
		t.Errorf("hidden field leaked:\n%s", out)
	}
}

func TestJSONFormatter_NoHTMLEscape(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(&buf, map[string]string{"path": "/orders?a=1&b=<2>"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/orders?a=1&b=<2>") {
		t.Errorf("path was escaped:\n%s", buf.String())
	}
}

func TestYAMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	err := (&YAMLFormatter{}).Format(&buf, sample{
		ID:        "b-1",
		Kind:      "buyer",
		Secret:    "s",
		Grants:    []string{"orders:read", "cart:*"},
		Attempts:  2,
		Ambiguous: "true",
	})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := `id: b-1
kind: buyer
grants:
  - orders:read
  - cart:*
attempts: 2
ambiguous: "true"
`
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestYAMLFormatter_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLFormatter{}).Format(&buf, nil); err != nil {
		t.Fatalf("Format(nil) error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "null" {
		t.Errorf("Format(nil) = %q", got)
	}
}
