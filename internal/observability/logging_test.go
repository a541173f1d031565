package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Output: &buf, Format: "json"})

	log.Info("provider configured",
		"openai", "sk-abcdefghijklmnopqrstuvwxyz123456",
		"anthropic", "sk-ant-REDACTED",
		"google", "AIzaSyAbCdEfGhIjKlMnOpQrStUvWxYz012345",
	)

	out := buf.String()
	for _, secret := range []string{
		"sk-abcdefghijklmnopqrstuvwxyz123456",
		"sk-ant-REDACTED",
		"AIzaSyAbCdEfGhIjKlMnOpQrStUvWxYz012345",
	} {
		if strings.Contains(out, secret) {
			t.Fatalf("credential leaked into log output: %s", out)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("no redaction marker in output: %s", out)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Output: &buf, Level: "warn", Format: "text"})

	log.Info("should be filtered")
	log.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatalf("info record not filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestNewMetricsRegistersCollectors(t *testing.T) {
	m := NewMetrics()
	m.RunCounter.WithLabelValues("COMPLETED").Inc()
	m.LLMRequestCounter.WithLabelValues("openai", "gpt-4o", "success").Inc()
	m.ToolExecutionCounter.WithLabelValues("python_exec", "success").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}
