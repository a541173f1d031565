package runner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvUseLLM forces real LLM mode when set to a truthy value.
const EnvUseLLM = "NEXOUS_USE_LLM"

// NewRunID generates the canonical run id, run_<YYYYMMDD_HHMMSS>_<6 hex>.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run_%s_%s", now.UTC().Format("20060102_150405"), uuid.NewString()[:6])
}

// UseLLMFromEnv reports whether NEXOUS_USE_LLM holds a truthy value
// ("true", "1", "yes", case-insensitive).
func UseLLMFromEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvUseLLM))) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
