package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func capture(t *testing.T, jsonMode bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevMode := Stdout, JSONMode
	Stdout, JSONMode = &buf, jsonMode
	t.Cleanup(func() { Stdout, JSONMode = prevOut, prevMode })
	return &buf
}

func TestPrintListCountsItems(t *testing.T) {
	buf := capture(t, true)

	PrintList("characters", []string{"Ayla", "Bren"})

	var got struct {
		Characters []string `json:"characters"`
		Count      int      `json:"count"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON %q: %v", buf.String(), err)
	}
	if got.Count != 2 || len(got.Characters) != 2 {
		t.Errorf("Expected 2 characters, got %+v", got)
	}
}

func TestPrintListNilSlice(t *testing.T) {
	buf := capture(t, true)

	var none []int
	PrintList("memories", none)

	if !bytes.Contains(buf.Bytes(), []byte(`"memories": []`)) {
		t.Errorf("Expected empty array, got %s", buf.String())
	}
}

func TestHumanModeWritesNothing(t *testing.T) {
	buf := capture(t, false)

	PrintList("characters", []string{"Ayla"})
	PrintStatus(StatusInfo{BaseURL: "http://localhost:8000"})
	Success("ok", nil)
	Error("failed", errors.New("boom"))

	if buf.Len() != 0 {
		t.Errorf("Expected no output in human mode, got %q", buf.String())
	}
}

func TestErrorResult(t *testing.T) {
	buf := capture(t, true)

	Error("Request failed", errors.New("backend returned status 500"))

	var got CommandResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.Success {
		t.Error("Expected success false")
	}
	if got.Error != "backend returned status 500" {
		t.Errorf("Expected error text, got %q", got.Error)
	}
}

func TestPrintStatus(t *testing.T) {
	buf := capture(t, true)

	PrintStatus(StatusInfo{BaseURL: "http://localhost:8004", Connected: true, Source: "scan"})

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got["base_url"] != "http://localhost:8004" || got["connected"] != true {
		t.Errorf("Unexpected status output: %v", got)
	}
	if _, ok := got["pid"]; ok {
		t.Error("Expected pid omitted when unknown")
	}
}
