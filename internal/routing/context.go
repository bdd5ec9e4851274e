package routing

import (
	"strings"

	"github.com/clawgate/clawgate/internal/chat"
)

// Context is the per-request, immutable-after-construction value every
// layer reads from. It is derived once from the incoming request.
type Context struct {
	System          string
	LastUser        string
	FullText        string
	EstimatedTokens int
	ModelRequested  string
	HasTools        bool
	Headers         map[string]string // lowercased x-openclaw* headers only
	Health          HealthSnapshot
}

const headerPrefix = "x-openclaw"

// BuildContext derives a routing Context from a parsed chat request. A
// single pass over messages extracts (system, last_user, full_text);
// multimodal content arrays are flattened via chat.Message.Text(), which
// also enforces the null-content invariant so this call never panics on
// content: null.
func BuildContext(messages []chat.Message, modelRequested string, hasTools bool, rawHeaders map[string][]string, health HealthSnapshot) Context {
	var systemParts []string
	var lastUser string
	var fullParts []string

	for _, m := range messages {
		text := m.Text()
		fullParts = append(fullParts, text)
		switch m.Role {
		case chat.RoleSystem:
			systemParts = append(systemParts, text)
		case chat.RoleUser:
			lastUser = text
		}
	}

	full := strings.Join(fullParts, "\n")

	headers := map[string]string{}
	for name, values := range rawHeaders {
		lname := strings.ToLower(name)
		if strings.HasPrefix(lname, headerPrefix) && len(values) > 0 {
			headers[lname] = values[0]
		}
	}

	return Context{
		System:          strings.Join(systemParts, "\n"),
		LastUser:        lastUser,
		FullText:        full,
		EstimatedTokens: estimateTokens(full),
		ModelRequested:  strings.ToLower(modelRequested),
		HasTools:        hasTools,
		Headers:         headers,
		Health:          health,
	}
}

// estimateTokens applies the fixed four-characters-per-token heuristic,
// floored at one token. The estimate is pinned deliberately and must
// not be replaced by a model-specific tokenizer: the estimated_tokens
// heuristic rules are tested against this exact approximation, and cost
// accounting always uses upstream-reported token counts anyway.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
