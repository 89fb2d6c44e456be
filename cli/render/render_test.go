package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/catalogfeed/cli/reader"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list valid formats, got %v", err)
	}
}

func status() *reader.StatusResponse {
	return &reader.StatusResponse{
		Feed:  "products",
		Phase: reader.PhaseInProgress,
		Current: &reader.CurrentRun{
			RunID:     "run-002",
			Attempt:   1,
			BatchSize: 15,
			NextBatch: 2,
			Records:   29,
			StartedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		Latest: nil,
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &buf).Render(status()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["feed"] != "products" || got["latest"] != nil {
		t.Errorf("json = %v", got)
	}
	cur, _ := got["current"].(map[string]any)
	if cur["next_batch"] != float64(2) {
		t.Errorf("current = %v", cur)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatYAML, false, &buf).Render(status()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"feed: products", "phase: in_progress", "run_id: run-002", "next_batch: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("YAML output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Table_NestedStruct(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(status()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	checks := []string{
		"feed:", "products",
		"current:\n",
		"  run_id:", "run-002",
		"  started_at:", "2026-05-01T10:00:00Z",
		"  parent_run_id:",
		"latest:", "-",
	}
	for _, want := range checks {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Table_Map(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)
	if err := r.Render(map[string]int{"not_found": 1, "ineligible": 3}); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if strings.Index(got, "ineligible") > strings.Index(got, "not_found") {
		t.Errorf("map keys should be sorted:\n%s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	type row struct {
		RunID   string `json:"run_id"`
		Records int64  `json:"records"`
		hidden  string
	}
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)
	if err := r.Render([]row{{RunID: "run-001", Records: 31, hidden: "x"}, {RunID: "run-002", Records: 29}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "run_id") || strings.Contains(lines[0], "hidden") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "run-001") || !strings.Contains(lines[1], "31") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, false, &buf).Render([]string{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderer_NoColorDoesNotAffectJSON(t *testing.T) {
	var color, plain bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &color).Render(status()); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &plain).Render(status()); err != nil {
		t.Fatal(err)
	}
	if color.String() != plain.String() {
		t.Error("--no-color should not affect JSON output")
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, false, &bytes.Buffer{})
	if err := r.RenderTUI("version", nil); err == nil || !strings.Contains(err.Error(), "--tui is not supported") {
		t.Fatalf("RenderTUI() error = %v", err)
	}
}
