package tools

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}
}

func runPython(t *testing.T, code string, timeout time.Duration) *Result {
	t.Helper()
	tool := NewPythonExec(Config{PythonTimeout: timeout})
	params, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return tool.Execute(context.Background(), params)
}

func TestPythonExecPrint(t *testing.T) {
	requirePython(t)
	res := runPython(t, "print(2+3)", 0)
	if !res.OK {
		t.Fatalf("execute failed: %s", res.Error)
	}
	if !strings.HasPrefix(res.Output, "5") {
		t.Fatalf("output = %q, want prefix %q", res.Output, "5")
	}
}

func TestPythonExecAllowedImport(t *testing.T) {
	requirePython(t)
	res := runPython(t, "import math\nprint(math.floor(3.7))", 0)
	if !res.OK {
		t.Fatalf("execute failed: %s", res.Error)
	}
	if !strings.HasPrefix(res.Output, "3") {
		t.Fatalf("output = %q", res.Output)
	}
}

func TestPythonExecForbiddenImport(t *testing.T) {
	requirePython(t)
	res := runPython(t, "import os\nprint(os.getcwd())", 0)
	if res.OK {
		t.Fatal("import os should be rejected")
	}
	if !strings.HasPrefix(res.Error, "ImportError:") {
		t.Fatalf("error = %q, want ImportError prefix", res.Error)
	}
}

func TestPythonExecForbiddenBuiltin(t *testing.T) {
	requirePython(t)
	res := runPython(t, "open('/etc/hostname')", 0)
	if res.OK {
		t.Fatal("open() should be unavailable")
	}
	if !strings.HasPrefix(res.Error, "NameError:") {
		t.Fatalf("error = %q, want NameError prefix", res.Error)
	}
}

func TestPythonExecSyntaxError(t *testing.T) {
	requirePython(t)
	res := runPython(t, "def broken(:", 0)
	if res.OK {
		t.Fatal("syntax error should fail")
	}
	if !strings.HasPrefix(res.Error, "SyntaxError:") {
		t.Fatalf("error = %q, want SyntaxError prefix", res.Error)
	}
}

func TestPythonExecRuntimeError(t *testing.T) {
	requirePython(t)
	res := runPython(t, "1/0", 0)
	if res.OK {
		t.Fatal("division by zero should fail")
	}
	if !strings.HasPrefix(res.Error, "ZeroDivisionError:") {
		t.Fatalf("error = %q, want ZeroDivisionError prefix", res.Error)
	}
}

func TestPythonExecTimeout(t *testing.T) {
	requirePython(t)
	res := runPython(t, "while True:\n    pass", 500*time.Millisecond)
	if res.OK {
		t.Fatal("infinite loop should time out")
	}
	if !strings.HasPrefix(res.Error, "TimeoutError:") {
		t.Fatalf("error = %q, want TimeoutError prefix", res.Error)
	}
}

func TestPythonExecEmptyCode(t *testing.T) {
	res := runPython(t, "   ", 0)
	if res.OK {
		t.Fatal("empty code should fail without spawning a process")
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := newLimitedBuffer(8)
	n, err := b.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if b.String() != "hello wo" {
		t.Fatalf("buffer = %q", b.String())
	}
	b.Write([]byte("more"))
	if b.String() != "hello wo" {
		t.Fatalf("buffer grew past cap: %q", b.String())
	}
}
