package config

import (
	"fmt"

	"github.com/nexous-ai/nexous/internal/trace"
)

// Error is a load or validation failure carrying the machine-readable kind
// that ends up verbatim in the trace's error list.
type Error struct {
	Kind string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements the kind-tagging contract used by the runner when
// mapping failures into ErrorRecords.
func (e *Error) ErrorKind() string { return e.Kind }

func parseError(path string, err error) *Error {
	return &Error{Kind: trace.KindYAMLParse, Path: path, Msg: err.Error(), Err: err}
}

func schemaError(path, msg string) *Error {
	return &Error{Kind: trace.KindSchemaValidation, Path: path, Msg: msg}
}

func presetLoadError(path, msg string) *Error {
	return &Error{Kind: trace.KindPresetLoad, Path: path, Msg: msg}
}

// PresetNotFoundError reports an agent referencing a preset id that did not
// resolve against the loaded preset set.
func PresetNotFoundError(presetID string) *Error {
	return &Error{Kind: trace.KindPresetNotFound, Msg: fmt.Sprintf("preset %q not found", presetID)}
}
