package agent

import "testing"

func TestExtractCodeBlocks(t *testing.T) {
	content := "Here is the plan.\n" +
		"```python\nprint(1)\n```\n" +
		"Some prose.\n" +
		"```json\n{\"a\": 1}\n```\n" +
		"```py\nprint(2)\n```\n" +
		"```python_exec\nprint(3)\n```\n"

	blocks := ExtractCodeBlocks(content, "python", "py", "python_exec")
	want := []string{"print(1)", "print(2)", "print(3)"}
	if len(blocks) != len(want) {
		t.Fatalf("blocks = %q, want %q", blocks, want)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("block %d = %q, want %q", i, blocks[i], want[i])
		}
	}
}

func TestExtractCodeBlocksJSON(t *testing.T) {
	content := "The result follows.\n```json\n{\"result\": 42}\n```\nDone."
	blocks := ExtractCodeBlocks(content, "json")
	if len(blocks) != 1 || blocks[0] != `{"result": 42}` {
		t.Fatalf("blocks = %q", blocks)
	}
}

func TestExtractCodeBlocksMultiline(t *testing.T) {
	content := "```python\nx = 1\ny = 2\nprint(x + y)\n```"
	blocks := ExtractCodeBlocks(content, "python")
	if len(blocks) != 1 || blocks[0] != "x = 1\ny = 2\nprint(x + y)" {
		t.Fatalf("blocks = %q", blocks)
	}
}

func TestExtractCodeBlocksEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"no blocks", "plain prose", 0},
		{"wrong language", "```bash\nls\n```", 0},
		{"unterminated", "```python\nprint(1)", 0},
		{"bare fence ignored", "```\nnot code\n```", 0},
		{"empty body", "```python\n```", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCodeBlocks(tt.content, "python"); len(got) != tt.want {
				t.Fatalf("got %d blocks (%q), want %d", len(got), got, tt.want)
			}
		})
	}
}
