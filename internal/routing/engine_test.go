package routing

import (
	"encoding/json"
	"testing"

	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// scenarioConfig builds a representative gateway configuration: three
// static rules (system-prompt keyword, model alias, routing header), a
// reasoning/tool-use/simple-query heuristic set, and a three-provider
// fallback chain.
func scenarioConfig() *config.Config {
	return &config.Config{
		FallbackChain: []string{"deepseek-chat", "gemini-flash", "openrouter"},
		StaticRules: config.RuleSetConfig{
			Enabled: true,
			Rules: []config.RuleConfig{
				{
					Name:    "heartbeat",
					Match:   config.MatchConfig{SystemPromptContains: []string{"heartbeat"}},
					RouteTo: "gemini-flash-lite",
				},
				{
					Name:    "r1",
					Match:   config.MatchConfig{ModelRequested: []string{"r1"}},
					RouteTo: "deepseek-reasoner",
				},
				{
					Name:    "subagent",
					Match:   config.MatchConfig{HeaderContains: map[string][]string{"x-openclaw-source": {"subagent"}}},
					RouteTo: "deepseek-chat",
				},
			},
		},
		HeuristicRules: config.RuleSetConfig{
			Enabled: true,
			Rules: []config.RuleConfig{
				{
					Name: "reasoning",
					Match: config.MatchConfig{MessageKeywords: &config.MessageKeywordsConfig{
						AnyOf:      []string{"prove", "theorem", "induction", "race", "refactor", "architecture"},
						MinMatches: 2,
					}},
					RouteTo: "deepseek-reasoner",
				},
				{
					Name:    "tool-use",
					Match:   config.MatchConfig{HasTools: boolPtr(true)},
					RouteTo: "deepseek-chat",
				},
				{
					Name:    "simple-query",
					Match:   config.MatchConfig{EstimatedTokens: &config.EstimatedTokensConfig{LessThan: intPtr(50)}},
					RouteTo: "gemini-flash-lite",
				},
			},
		},
	}
}

func msgs(system, user string) []chat.Message {
	var out []chat.Message
	if system != "" {
		out = append(out, chat.Message{Role: chat.RoleSystem, Content: rawString(system)})
	}
	if user != "" {
		out = append(out, chat.Message{Role: chat.RoleUser, Content: rawString(user)})
	}
	return out
}

func rawString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func allHealthy() HealthSnapshot { return HealthSnapshot{} }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(scenarioConfig(), nil, nil)
	require.NoError(t, err)
	return e
}

func TestScenario1_Heartbeat(t *testing.T) {
	e := newTestEngine(t)
	ctx := BuildContext(msgs("heartbeat check", "ok"), "auto", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "gemini-flash-lite", d.ProviderName)
	assert.Equal(t, LayerStatic, d.Layer)
	assert.Equal(t, "heartbeat", d.RuleName)
}

func TestScenario2_ModelRequestedR1(t *testing.T) {
	e := newTestEngine(t)
	ctx := BuildContext(msgs("", "hi"), "r1", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "deepseek-reasoner", d.ProviderName)
	assert.Equal(t, LayerStatic, d.Layer)
	assert.Equal(t, "r1", d.RuleName)
}

func TestScenario3_HeaderSubagent(t *testing.T) {
	e := newTestEngine(t)
	headers := map[string][]string{"X-Openclaw-Source": {"subagent-42"}}
	ctx := BuildContext(msgs("", "process file"), "auto", false, headers, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "deepseek-chat", d.ProviderName)
	assert.Equal(t, LayerStatic, d.Layer)
	assert.Equal(t, "subagent", d.RuleName)
}

func TestScenario4_ReasoningHeuristic(t *testing.T) {
	e := newTestEngine(t)
	ctx := BuildContext(msgs("", "Prove the theorem step by step using induction"), "auto", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "deepseek-reasoner", d.ProviderName)
	assert.Equal(t, LayerHeuristic, d.Layer)
}

func TestScenario5_SystemPromptInsulation(t *testing.T) {
	e := newTestEngine(t)
	laden := "prove theorem induction race refactor architecture prove theorem induction race refactor"
	ctx := BuildContext(msgs(laden, "find my file"), "auto", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.NotEqual(t, "deepseek-reasoner", d.ProviderName)
}

func TestScenario6_SimpleQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := BuildContext(msgs("", "你好"), "auto", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "gemini-flash-lite", d.ProviderName)
	assert.Equal(t, LayerHeuristic, d.Layer)
	assert.Equal(t, "simple-query", d.RuleName)
}

func TestScenario7_ToolUse(t *testing.T) {
	e := newTestEngine(t)
	ctx := BuildContext(msgs("", "search files"), "auto", true, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "deepseek-chat", d.ProviderName)
	assert.Equal(t, LayerHeuristic, d.Layer)
	assert.Equal(t, "tool-use", d.RuleName)
}

func TestScenario8_HealthFallback(t *testing.T) {
	e := newTestEngine(t)
	health := HealthSnapshot{
		"deepseek-reasoner": {Healthy: false},
		"deepseek-chat":     {Healthy: true},
	}
	ctx := BuildContext(msgs("", "hi"), "r1", false, nil, health)
	d := e.Route(ctx)
	assert.Equal(t, "deepseek-chat", d.ProviderName)
	assert.Contains(t, d.RuleName, "→fallback")
}

func TestEngine_NeverFails_EmptyConfig(t *testing.T) {
	e, err := NewEngine(&config.Config{FallbackChain: []string{"only-provider"}}, nil, nil)
	require.NoError(t, err)
	ctx := BuildContext(nil, "auto", false, nil, allHealthy())
	d := e.Route(ctx)
	assert.Equal(t, "only-provider", d.ProviderName)
	assert.Equal(t, LayerFallback, d.Layer)
}

func TestEngine_RejectsHeuristicPredicateInStaticRule(t *testing.T) {
	cfg := &config.Config{
		StaticRules: config.RuleSetConfig{Enabled: true, Rules: []config.RuleConfig{
			{Name: "bad", Match: config.MatchConfig{HasTools: boolPtr(true)}, RouteTo: "x"},
		}},
	}
	_, err := NewEngine(cfg, nil, nil)
	require.Error(t, err)
}

func TestEngine_RejectsEmptyStaticMatch(t *testing.T) {
	cfg := &config.Config{
		StaticRules: config.RuleSetConfig{Enabled: true, Rules: []config.RuleConfig{
			{Name: "empty", Match: config.MatchConfig{}, RouteTo: "x"},
		}},
	}
	_, err := NewEngine(cfg, nil, nil)
	require.Error(t, err)
}

// A static rule combining several keys matches when any one of them
// hits, and misses only when all of them do.
func TestEngine_StaticRuleCombinesKeysAsUnion(t *testing.T) {
	cfg := &config.Config{
		FallbackChain: []string{"deepseek-chat"},
		StaticRules: config.RuleSetConfig{
			Enabled: true,
			Rules: []config.RuleConfig{{
				Name: "combined",
				Match: config.MatchConfig{
					ModelRequested:       []string{"r1"},
					SystemPromptContains: []string{"heartbeat"},
				},
				RouteTo: "deepseek-reasoner",
			}},
		},
	}
	e, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)

	// Model pattern hits, system prompt doesn't.
	d := e.Route(BuildContext(msgs("plain prompt", "hi"), "r1", false, nil, allHealthy()))
	assert.Equal(t, "deepseek-reasoner", d.ProviderName)
	assert.Equal(t, "combined", d.RuleName)

	// System prompt hits, model doesn't.
	d = e.Route(BuildContext(msgs("heartbeat check", "hi"), "auto", false, nil, allHealthy()))
	assert.Equal(t, "deepseek-reasoner", d.ProviderName)

	// Both miss: the rule is false and the engine falls through.
	d = e.Route(BuildContext(msgs("plain prompt", "hi"), "auto", false, nil, allHealthy()))
	assert.Equal(t, LayerFallback, d.Layer)
	assert.Equal(t, "deepseek-chat", d.ProviderName)
}
