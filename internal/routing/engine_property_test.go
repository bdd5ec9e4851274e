package routing

import (
	"testing"

	"github.com/clawgate/clawgate/internal/chat"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_Determinism: Route returns identical (provider, layer,
// rule_name) for identical inputs, across repeated calls.
func TestProperty_Determinism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	e := newTestEngine(t)

	properties.Property("routing is deterministic", prop.ForAll(
		func(system, user, model string, hasTools bool) bool {
			ctx := BuildContext(msgs(system, user), model, hasTools, nil, allHealthy())
			first := e.Route(ctx)
			for i := 0; i < 5; i++ {
				again := e.Route(ctx)
				if again.ProviderName != first.ProviderName || again.Layer != first.Layer || again.RuleName != first.RuleName {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.OneConstOf("auto", "r1", "deepseek-chat", ""),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_SystemPromptInsulation: stuffing every reasoning-heuristic
// keyword into the system prompt while keeping the last user message
// free of them must never select a reasoning-tier provider through the
// heuristic layer.
func TestProperty_SystemPromptInsulation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	e := newTestEngine(t)
	ladenSystem := "prove theorem induction race refactor architecture " +
		"prove theorem induction race refactor architecture"

	properties.Property("keyword-laden system prompt never triggers the reasoning heuristic", prop.ForAll(
		func(benignUser string) bool {
			ctx := BuildContext(msgs(ladenSystem, benignUser), "auto", false, nil, allHealthy())
			d := e.Route(ctx)
			if d.Layer == LayerHeuristic && d.RuleName == "reasoning" {
				return false
			}
			return true
		},
		gen.OneConstOf("find my file", "what time is it", "list my todos", "hello there"),
	))

	properties.TestingRun(t)
}

// TestProperty_NullContentTolerance: messages with content: null on any
// role must never cause BuildContext (or downstream dialect translation,
// tested in the provider packages) to fail, and the flattened text is
// always a string.
func TestProperty_NullContentTolerance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("null content flattens to empty string across every role", prop.ForAll(
		func(role string) bool {
			m := chat.Message{Role: role, Content: []byte("null")}
			return m.Text() == ""
		},
		gen.OneConstOf(chat.RoleSystem, chat.RoleUser, chat.RoleAssistant, chat.RoleTool),
	))

	properties.TestingRun(t)
}

// TestProperty_AttemptOrderUniqueness: given any chosen provider and any
// fallback chain (possibly containing the chosen provider more than
// once, or omitting it), BuildAttemptOrder must never repeat a provider
// name.
func TestProperty_AttemptOrderUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("attempt order has no duplicates", prop.ForAll(
		func(chosen string, chain []string) bool {
			order := BuildAttemptOrder(chosen, chain)
			seen := map[string]bool{}
			for _, p := range order {
				if seen[p] {
					return false
				}
				seen[p] = true
			}
			return true
		},
		gen.OneConstOf("a", "b", "c"),
		gen.SliceOfN(5, gen.OneConstOf("a", "b", "c", "d")),
	))

	properties.TestingRun(t)
}
