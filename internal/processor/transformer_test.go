package processor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type sampleEvent struct {
	OrderID   int64  `json:"order_id"`
	EventType string `json:"event_type"`
	Status    string `json:"order_status"`
}

func TestTransformDisabledPassesThrough(t *testing.T) {
	tr, err := NewTransformer(&config.ProcessorConfig{Enabled: false}, testLogger())
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	in := sampleEvent{OrderID: 1, EventType: "created"}
	out, err := tr.Transform("orders", in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out != any(in) {
		t.Errorf("disabled transformer modified the payload: %v", out)
	}
}

func TestTransformRules(t *testing.T) {
	cfg := &config.ProcessorConfig{
		Enabled: true,
		Rules: []config.TransformRule{
			{
				Topic:     "orders",
				Exclude:   []string{"order_status"},
				Rename:    map[string]string{"event_type": "type"},
				AddFields: map[string]string{"source": "event-producer"},
			},
		},
	}
	tr, err := NewTransformer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	out, err := tr.Transform("orders", sampleEvent{OrderID: 1, EventType: "created", Status: "PENDING"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	fields, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	if _, exists := fields["order_status"]; exists {
		t.Error("excluded field survived")
	}
	if fields["type"] != "created" {
		t.Errorf("renamed field: got %v", fields["type"])
	}
	if _, exists := fields["event_type"]; exists {
		t.Error("old name survived rename")
	}
	if fields["source"] != "event-producer" {
		t.Errorf("added field: got %v", fields["source"])
	}

	// Other topics are untouched.
	in := sampleEvent{OrderID: 2, EventType: "restock"}
	out, err = tr.Transform("inventory", in)
	if err != nil {
		t.Fatalf("Transform other topic: %v", err)
	}
	if out != any(in) {
		t.Errorf("rule leaked onto another topic: %v", out)
	}
}

func TestTransformRulesInclude(t *testing.T) {
	cfg := &config.ProcessorConfig{
		Enabled: true,
		Rules: []config.TransformRule{
			{Topic: "orders", Include: []string{"order_id", "event_type"}},
		},
	}
	tr, err := NewTransformer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	out, err := tr.Transform("orders", sampleEvent{OrderID: 1, EventType: "created", Status: "PENDING"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	fields := out.(map[string]any)
	if len(fields) != 2 {
		t.Errorf("include list not applied: %v", fields)
	}
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transform.js")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTransformJavaScript(t *testing.T) {
	script := writeScript(t, `(function(event, topic) {
		event.topic = topic;
		event.order_id = event.order_id * 2;
		return event;
	})`)
	tr, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, testLogger())
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	out, err := tr.Transform("orders", sampleEvent{OrderID: 21, EventType: "created"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	fields, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	if fields["topic"] != "orders" {
		t.Errorf("topic argument: got %v", fields["topic"])
	}
	if fields["order_id"] != int64(42) {
		t.Errorf("order_id: got %v (%T)", fields["order_id"], fields["order_id"])
	}
}

func TestTransformJavaScriptRejection(t *testing.T) {
	script := writeScript(t, `(function(event) {
		if (event.event_type === "updated") {
			return null;
		}
		return event;
	})`)
	tr, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, testLogger())
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}

	_, err = tr.Transform("orders", sampleEvent{OrderID: 1, EventType: "updated"})
	if !errors.Is(err, ErrEventRejected) {
		t.Errorf("expected ErrEventRejected, got %v", err)
	}

	if _, err := tr.Transform("orders", sampleEvent{OrderID: 1, EventType: "created"}); err != nil {
		t.Errorf("non-matching event rejected: %v", err)
	}
}

func TestTransformJavaScriptNamedFunction(t *testing.T) {
	script := writeScript(t, `function transform(event) { return event; }`)
	if _, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, testLogger()); err != nil {
		t.Errorf("named transform function rejected: %v", err)
	}
}

func TestTransformInvalidScript(t *testing.T) {
	script := writeScript(t, `var notAFunction = 42;`)
	if _, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, testLogger()); err == nil {
		t.Error("script without a transform function accepted")
	}
}
