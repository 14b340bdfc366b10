package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleEvent struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func TestWriterDisabledIsSafe(t *testing.T) {
	if w := NewWriter("   ", nil); w != nil {
		t.Fatalf("blank dir should disable the writer")
	}

	var w *Writer
	if w.Enabled() {
		t.Fatalf("nil writer should report disabled")
	}
	if err := w.Write(sampleEvent{ID: "x"}); err != nil {
		t.Fatalf("nil writer should swallow writes: %v", err)
	}
	w.WriteAsync(sampleEvent{ID: "x"})
}

func TestWriterPersistsEvent(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, nil)
	if !w.Enabled() {
		t.Fatalf("writer should be enabled")
	}

	evt := sampleEvent{ID: "m1", Body: "olá"}
	if err := w.Write(evt); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(base, "sampleEvent", day)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one file under %s, got %v (%v)", dir, entries, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var record struct {
		EventType  string         `json:"event_type"`
		ReceivedAt string         `json:"received_at"`
		Payload    map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("invalid record: %v", err)
	}
	if record.EventType != "sampleEvent" {
		t.Fatalf("unexpected event type: %q", record.EventType)
	}
	if _, err := time.Parse(time.RFC3339Nano, record.ReceivedAt); err != nil {
		t.Fatalf("received_at not rfc3339: %q", record.ReceivedAt)
	}
	if record.Payload["id"] != "m1" || record.Payload["body"] != "olá" {
		t.Fatalf("payload lost: %+v", record.Payload)
	}
}

type unserializableEvent struct {
	Ch chan int
}

func TestWriterKeepsUnserializablePayloadAsText(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, nil)

	// Canal não serializa; o registro vira texto em vez de sumir.
	if err := w.Write(unserializableEvent{Ch: make(chan int)}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(base, "unserializableEvent", day)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected fallback file, got %v (%v)", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	var record struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("invalid record: %v", err)
	}
	if s, _ := record.Payload["marshal_error"].(string); s == "" {
		t.Fatalf("fallback payload without marshal_error: %+v", record.Payload)
	}
	if s, _ := record.Payload["payload_text"].(string); s == "" {
		t.Fatalf("fallback payload without payload_text: %+v", record.Payload)
	}
}

func TestWriteAsyncEventuallyLands(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, nil)

	w.WriteAsync(sampleEvent{ID: "async"})

	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(base, "sampleEvent", day)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("async write never landed in %s", dir)
}

func TestDetectEventType(t *testing.T) {
	if got := detectEventType(sampleEvent{}); got != "sampleEvent" {
		t.Fatalf("expected sampleEvent, got %q", got)
	}
	if got := detectEventType(&sampleEvent{}); got != "sampleEvent" {
		t.Fatalf("pointer should resolve to the same name, got %q", got)
	}
	if got := detectEventType(42); got != "int" {
		t.Fatalf("expected int, got %q", got)
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := map[string]string{
		"Message":          "Message",
		"eventos/validos":  "eventos_validos",
		"  espaçado  ":     "espa_ado",
		"___":              "unknown",
		"":                 "unknown",
		"..ponto.final..":  "ponto.final",
		"Receipt*De*Curto": "Receipt_De_Curto",
	}
	for in, want := range cases {
		if got := sanitizeSegment(in); got != want {
			t.Fatalf("sanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
