package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxReadBytes caps file_read payloads at 10 MiB.
const maxReadBytes = 10 * 1024 * 1024

// resolver resolves and validates base-relative paths, refusing escapes.
type resolver struct {
	base string
}

func (r resolver) resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	base := strings.TrimSpace(r.base)
	if base == "" {
		base = "."
	}
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(baseAbs, clean)
	}
	rel, err := filepath.Rel(baseAbs, target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes base directory")
	}
	return target, nil
}

// FileRead reads a file relative to the configured base directory.
type FileRead struct {
	resolver resolver
}

// NewFileRead creates the tool from registry config.
func NewFileRead(cfg Config) *FileRead {
	return &FileRead{resolver: resolver{base: cfg.BaseDir}}
}

// Name returns "file_read".
func (t *FileRead) Name() string { return NameFileRead }

// Description returns the tool description.
func (t *FileRead) Description() string {
	return "Read a UTF-8 text file relative to the workspace (10 MiB limit)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *FileRead) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Path relative to the workspace."}
  },
  "required": ["path"]
}`)
}

// Execute reads the file, failing on missing paths, directories, files
// over the size cap, and non-UTF-8 content.
func (t *FileRead) Execute(ctx context.Context, params json.RawMessage) *Result {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("invalid parameters: %v", err)}
	}
	path, err := t.resolver.resolve(input.Path)
	if err != nil {
		return &Result{OK: false, Error: err.Error()}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("file not found: %s", input.Path)}
	}
	if info.IsDir() {
		return &Result{OK: false, Error: fmt.Sprintf("path is a directory: %s", input.Path)}
	}
	if info.Size() > maxReadBytes {
		return &Result{
			OK:       false,
			Error:    fmt.Sprintf("file too large: %d bytes exceeds the %d byte limit", info.Size(), maxReadBytes),
			Metadata: map[string]any{"file_size": info.Size()},
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("read failed: %v", err)}
	}
	if !utf8.Valid(data) {
		return &Result{OK: false, Error: fmt.Sprintf("decode error: %s is not valid UTF-8", input.Path)}
	}
	return &Result{
		OK:       true,
		Output:   string(data),
		Metadata: map[string]any{"file_size": info.Size()},
	}
}

// FileWrite writes a file relative to the configured base directory,
// creating parent directories as needed.
type FileWrite struct {
	resolver resolver
}

// NewFileWrite creates the tool from registry config.
func NewFileWrite(cfg Config) *FileWrite {
	return &FileWrite{resolver: resolver{base: cfg.BaseDir}}
}

// Name returns "file_write".
func (t *FileWrite) Name() string { return NameFileWrite }

// Description returns the tool description.
func (t *FileWrite) Description() string {
	return "Write or append a file relative to the workspace, creating parent directories."
}

// Schema returns the JSON schema for the tool parameters.
func (t *FileWrite) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Path relative to the workspace."},
    "content": {"type": "string", "description": "Content to write."},
    "append": {"type": "boolean", "description": "Append instead of truncate."}
  },
  "required": ["path", "content"]
}`)
}

// Execute writes the content, reporting bytes written in metadata.
func (t *FileWrite) Execute(ctx context.Context, params json.RawMessage) *Result {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("invalid parameters: %v", err)}
	}
	path, err := t.resolver.resolve(input.Path)
	if err != nil {
		return &Result{OK: false, Error: err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("create parent directories: %v", err)}
	}
	flags := os.O_WRONLY | os.O_CREATE
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("open failed: %v", err)}
	}
	defer f.Close()
	n, err := f.WriteString(input.Content)
	if err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("write failed: %v", err)}
	}
	return &Result{
		OK:     true,
		Output: fmt.Sprintf("wrote %d bytes to %s", n, input.Path),
		Metadata: map[string]any{
			"bytes_written": n,
			"artifact_id":   newArtifactID(),
			"path":          input.Path,
		},
	}
}

// newArtifactID mints the id a written file is registered under in the
// trace artefact list.
func newArtifactID() string {
	return "art_" + uuid.NewString()[:8]
}
