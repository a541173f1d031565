package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultPythonTimeout bounds one python_exec call.
const defaultPythonTimeout = 30 * time.Second

// maxToolOutput caps captured stdout/stderr per call.
const maxToolOutput = 64000

// pythonHarness is the wrapper executed by the interpreter. It restricts
// builtins and imports to the enumerated allow-lists, reads the agent's
// code from stdin, and reports failures as "<ExceptionName>: <message>" on
// stderr with a non-zero exit. Running in a separate isolated process
// (-I -S) guarantees the host interpreter state is never touched.
const pythonHarness = `
import builtins, sys

_ALLOWED_BUILTINS = (
    "print", "repr",
    "int", "float", "complex", "bool", "str", "bytes",
    "list", "dict", "set", "tuple", "frozenset",
    "len", "range", "enumerate", "zip", "map", "filter", "sorted", "reversed",
    "iter", "next", "all", "any",
    "sum", "min", "max", "abs", "round", "pow", "divmod",
    "isinstance", "type", "hasattr", "getattr", "setattr",
    "Exception", "BaseException", "ValueError", "TypeError", "KeyError",
    "IndexError", "AttributeError", "ZeroDivisionError", "ArithmeticError",
    "RuntimeError", "StopIteration", "ImportError", "NameError",
)

_ALLOWED_MODULES = {"math", "statistics", "random", "datetime", "json", "re",
                    "collections", "itertools", "functools"}

_real_import = builtins.__import__

def _guarded_import(name, globals=None, locals=None, fromlist=(), level=0):
    if name.split(".")[0] not in _ALLOWED_MODULES:
        raise ImportError("import of module %r is not permitted" % name)
    return _real_import(name, globals, locals, fromlist, level)

_safe = {n: getattr(builtins, n) for n in _ALLOWED_BUILTINS if hasattr(builtins, n)}
_safe["__import__"] = _guarded_import

_code = sys.stdin.read()
try:
    exec(compile(_code, "<agent>", "exec"), {"__builtins__": _safe})
except BaseException as _e:
    sys.stderr.write("%s: %s" % (type(_e).__name__, _e))
    sys.exit(1)
`

// PythonExec runs agent-supplied code in a restricted interpreter
// subprocess.
type PythonExec struct {
	bin     string
	timeout time.Duration
}

// NewPythonExec creates the tool from registry config.
func NewPythonExec(cfg Config) *PythonExec {
	bin := cfg.PythonBin
	if bin == "" {
		bin = "python3"
	}
	timeout := cfg.PythonTimeout
	if timeout <= 0 {
		timeout = defaultPythonTimeout
	}
	return &PythonExec{bin: bin, timeout: timeout}
}

// Name returns "python_exec".
func (t *PythonExec) Name() string { return NamePythonExec }

// Description returns the tool description.
func (t *PythonExec) Description() string {
	return "Execute Python code in a restricted sandbox. Only whitelisted builtins and standard modules are available."
}

// Schema returns the JSON schema for the tool parameters.
func (t *PythonExec) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "code": {"type": "string", "description": "Python source to execute."}
  },
  "required": ["code"]
}`)
}

// Execute runs the code under the harness with a hard deadline.
func (t *PythonExec) Execute(ctx context.Context, params json.RawMessage) *Result {
	var input struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &Result{OK: false, Error: fmt.Sprintf("invalid parameters: %v", err)}
	}
	if strings.TrimSpace(input.Code) == "" {
		return &Result{OK: false, Error: "code is required"}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.bin, "-I", "-S", "-c", pythonHarness)
	cmd.Stdin = strings.NewReader(input.Code)
	stdout := newLimitedBuffer(maxToolOutput)
	stderr := newLimitedBuffer(maxToolOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return &Result{
			OK:    false,
			Error: fmt.Sprintf("TimeoutError: execution exceeded %s", t.timeout),
		}
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &Result{OK: false, Error: msg}
	}
	return &Result{OK: true, Output: stdout.String()}
}

// limitedBuffer is an io.Writer that keeps at most max bytes and drops the
// rest, so a runaway print loop cannot exhaust memory.
type limitedBuffer struct {
	max  int
	data []byte
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - len(b.data); remaining > 0 {
		if len(p) > remaining {
			b.data = append(b.data, p[:remaining]...)
		} else {
			b.data = append(b.data, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return string(b.data) }
