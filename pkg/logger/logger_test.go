package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOutput("debug", "json", &buf); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	WithFields(Fields{"cache_key": "Correlation_false_4_0.1_1_50.csv"}).Info("cache hit")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["cache_key"] != "Correlation_false_4_0.1_1_50.csv" {
		t.Errorf("missing field, got %v", entry)
	}
	if entry["msg"] != "cache hit" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOutput("warn", "text", &buf); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestInitRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOutput("loud", "text", &buf); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := InitWithOutput("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
