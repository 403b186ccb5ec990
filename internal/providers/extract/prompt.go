package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are a knowledge extraction system. Output only valid JSON."

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(
		`Extract distinct, permanent facts from the message. Output format: JSON list of strings. Rules: 1. Ignore greetings and small talk. 2. Facts must be self-contained (replace "he" with "User"). 3. Output [] when there is nothing worth remembering. Message: %s`,
		text,
	)
}

func parseExtractionResponse(content string) ([]string, error) {
	jsonStr := extractJSONArray(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var facts []string
	if err := json.Unmarshal([]byte(jsonStr), &facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}

	out := facts[:0]
	for _, f := range facts {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], "]")
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}
