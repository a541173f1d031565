package agent

import "strings"

// ExtractCodeBlocks returns the bodies of fenced code blocks whose info
// string matches one of langs, in document order. An unterminated fence is
// ignored rather than swallowing the rest of the message.
func ExtractCodeBlocks(content string, langs ...string) []string {
	want := make(map[string]bool, len(langs))
	for _, l := range langs {
		want[strings.ToLower(l)] = true
	}

	var blocks []string
	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "```")))
		if !want[lang] {
			continue
		}
		var body []string
		closed := false
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				blocks = append(blocks, strings.Join(body, "\n"))
				i = j
				closed = true
				break
			}
			body = append(body, lines[j])
		}
		if !closed {
			break
		}
	}
	return blocks
}
