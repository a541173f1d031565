package agent

import (
	"testing"

	"github.com/nexous-ai/nexous/internal/config"
)

func TestValidateOutputFencedBlock(t *testing.T) {
	content := "Here you go:\n```json\n{\"result\": \"done\", \"steps\": [1, 2]}\n```\nAnything else?"
	pol := &config.OutputPolicy{Format: "json", RequiredFields: []string{"result", "steps"}}

	output, warnings := ValidateOutput(content, pol)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if output["result"] != "done" {
		t.Fatalf("output = %+v", output)
	}
}

func TestValidateOutputWholeMessage(t *testing.T) {
	content := `{"result": 7}`
	pol := &config.OutputPolicy{Format: "json", RequiredFields: []string{"result"}}

	output, warnings := ValidateOutput(content, pol)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if output["result"] != float64(7) {
		t.Fatalf("output = %+v", output)
	}
}

func TestValidateOutputMissingFieldWarns(t *testing.T) {
	content := "```json\n{\"result\": \"partial\"}\n```"
	pol := &config.OutputPolicy{Format: "json", RequiredFields: []string{"result", "steps"}}

	output, warnings := ValidateOutput(content, pol)
	if output == nil {
		t.Fatal("output should still parse")
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one missing-field warning", warnings)
	}
}

func TestValidateOutputNotJSON(t *testing.T) {
	output, warnings := ValidateOutput("this is prose, not JSON", &config.OutputPolicy{Format: "json"})
	if output != nil {
		t.Fatalf("output = %+v, want nil", output)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
}
