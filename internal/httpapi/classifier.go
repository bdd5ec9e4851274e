package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawgate/clawgate/internal/app"
	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/routing"
)

// NewClassifier builds the LLM-classifier callback injected into the
// routing engine at wiring time; the engine itself never imports the
// provider package. The classification prompt runs against the first
// healthy provider in the fallback chain - the chain's head is already
// the gateway's designated default/cheapest upstream, so reusing it
// avoids a second configuration knob for what is a single-call,
// low-stakes classification request.
func NewClassifier(a *app.App) routing.ClassifierFunc {
	return func(prompt string) (string, error) {
		name := classifierProviderName(a)
		if name == "" {
			return "", fmt.Errorf("classifier: no provider configured")
		}

		backend, ok := a.Registry.Get(name)
		if !ok {
			return "", fmt.Errorf("classifier: provider %q not registered", name)
		}

		content, _ := json.Marshal(prompt)
		req := &chat.ChatRequest{
			Messages: []chat.Message{{Role: chat.RoleUser, Content: content}},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, _, err := backend.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("classifier: empty response from %q", name)
		}
		return resp.Choices[0].Message.Text(), nil
	}
}

func classifierProviderName(a *app.App) string {
	for _, name := range a.Config.FallbackChain {
		if b, ok := a.Registry.Get(name); ok && b.Health().Healthy {
			return name
		}
	}
	names := a.Registry.List()
	if len(names) > 0 {
		return names[0]
	}
	return ""
}
