package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", false)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn().Str("offer_id", "o1").Msg("visible")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["offer_id"] != "o1" {
		t.Errorf("offer_id = %v, want o1", entry["offer_id"])
	}
	if entry["service"] != "kisan-choice-api" {
		t.Errorf("service = %v", entry["service"])
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud", false)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("debug should be filtered at the fallback level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("info should be written at the fallback level")
	}
}
