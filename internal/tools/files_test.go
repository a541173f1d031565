package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func invokeFile(t *testing.T, tool Tool, params map[string]any) *Result {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return tool.Execute(context.Background(), raw)
}

func TestFileReadRoundTrip(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	res := invokeFile(t, NewFileRead(Config{BaseDir: base}), map[string]any{"path": "note.txt"})
	if !res.OK {
		t.Fatalf("read failed: %s", res.Error)
	}
	if res.Output != "hello" {
		t.Fatalf("output = %q", res.Output)
	}
	if res.Metadata["file_size"] != int64(5) {
		t.Fatalf("file_size = %v", res.Metadata["file_size"])
	}
}

func TestFileReadErrors(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "binary.bin"), []byte{0xff, 0xfe, 0x00, 0x80}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	tool := NewFileRead(Config{BaseDir: base})

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing", "nope.txt", "not found"},
		{"directory", "subdir", "directory"},
		{"escape", "../outside.txt", "escapes"},
		{"binary", "binary.bin", "not valid UTF-8"},
		{"empty path", "", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := invokeFile(t, tool, map[string]any{"path": tt.path})
			if res.OK {
				t.Fatal("expected failure")
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Fatalf("error = %q, want substring %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestFileReadSizeCap(t *testing.T) {
	base := t.TempDir()
	big := filepath.Join(base, "big.txt")
	f, err := os.Create(big)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Truncate(maxReadBytes + 1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	f.Close()

	res := invokeFile(t, NewFileRead(Config{BaseDir: base}), map[string]any{"path": "big.txt"})
	if res.OK {
		t.Fatal("oversize read should fail")
	}
	if res.Output != "" {
		t.Fatal("oversize read must not return content")
	}
	if !strings.Contains(res.Error, "too large") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestFileWriteCreatesParents(t *testing.T) {
	base := t.TempDir()
	tool := NewFileWrite(Config{BaseDir: base})
	res := invokeFile(t, tool, map[string]any{"path": "deep/nested/out.txt", "content": "payload"})
	if !res.OK {
		t.Fatalf("write failed: %s", res.Error)
	}
	if res.Metadata["bytes_written"] != 7 {
		t.Fatalf("bytes_written = %v", res.Metadata["bytes_written"])
	}
	data, err := os.ReadFile(filepath.Join(base, "deep", "nested", "out.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("content = %q", data)
	}
}

func TestFileWriteStampsArtifactMetadata(t *testing.T) {
	base := t.TempDir()
	tool := NewFileWrite(Config{BaseDir: base})
	res := invokeFile(t, tool, map[string]any{"path": "report.md", "content": "done"})
	if !res.OK {
		t.Fatalf("write failed: %s", res.Error)
	}
	id, ok := res.Metadata["artifact_id"].(string)
	if !ok || !strings.HasPrefix(id, "art_") {
		t.Fatalf("artifact_id = %v", res.Metadata["artifact_id"])
	}
	if res.Metadata["path"] != "report.md" {
		t.Fatalf("path = %v", res.Metadata["path"])
	}

	again := invokeFile(t, tool, map[string]any{"path": "report.md", "content": "done"})
	if again.Metadata["artifact_id"] == id {
		t.Fatal("artifact ids must be unique per write")
	}
}

func TestFileWriteAppend(t *testing.T) {
	base := t.TempDir()
	tool := NewFileWrite(Config{BaseDir: base})
	if res := invokeFile(t, tool, map[string]any{"path": "log.txt", "content": "one\n"}); !res.OK {
		t.Fatalf("first write: %s", res.Error)
	}
	if res := invokeFile(t, tool, map[string]any{"path": "log.txt", "content": "two\n", "append": true}); !res.OK {
		t.Fatalf("append: %s", res.Error)
	}
	if res := invokeFile(t, tool, map[string]any{"path": "log.txt", "content": "three\n"}); !res.OK {
		t.Fatalf("truncate write: %s", res.Error)
	}
	data, err := os.ReadFile(filepath.Join(base, "log.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "three\n" {
		t.Fatalf("content = %q, want truncating overwrite", data)
	}
}

func TestFileWriteRejectsEscape(t *testing.T) {
	base := t.TempDir()
	res := invokeFile(t, NewFileWrite(Config{BaseDir: base}), map[string]any{
		"path": "../escape.txt", "content": "nope",
	})
	if res.OK {
		t.Fatal("escape should be rejected")
	}
}

func TestRegistryWhitelist(t *testing.T) {
	reg := NewRegistry(Config{BaseDir: t.TempDir()}, nil, nil)
	for _, name := range []string{NamePythonExec, NameFileRead, NameFileWrite} {
		if _, err := reg.Get(name); err != nil {
			t.Errorf("Get(%q): %v", name, err)
		}
	}
	if _, err := reg.Get("shell_exec"); err == nil {
		t.Error("non-whitelisted tool should not resolve")
	}

	res := reg.Invoke(context.Background(), "shell_exec", nil)
	if res.OK {
		t.Fatal("invoking unknown tool should fail")
	}
	if res.Metadata["tool_name"] != "shell_exec" {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
	if _, ok := res.Metadata["latency_ms"]; !ok {
		t.Fatal("latency_ms missing from metadata")
	}
}
