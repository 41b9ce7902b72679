package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that reasoning models may
// emit at the start of a response.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractSQL extracts the SQL statement from a model response that may
// contain <think> tags or markdown code fences. Returns an error when
// nothing remains after cleanup.
func ExtractSQL(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	// Models frequently wrap SQL in ```sql fences despite being told not to.
	cleaned = strings.ReplaceAll(cleaned, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", fmt.Errorf("no SQL in response")
	}
	return cleaned, nil
}
