package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/clawgate/clawgate/internal/config"
	"go.uber.org/zap"
)

// compiledRule pairs a name and a compiled Matcher with the provider it
// routes to.
type compiledRule struct {
	name    string
	matcher Matcher
	routeTo string
}

// Engine runs the three classification layers in order - static rules,
// heuristic rules, an optional LLM classifier - then a fallback
// sentinel, with health validation applied to whatever layer decided.
// Route never fails: if nothing matches, it falls back to the first
// configured fallback provider.
type Engine struct {
	staticEnabled    bool
	staticRules      []compiledRule
	heuristicEnabled bool
	heuristicRules   []compiledRule

	llmEnabled         bool
	llmPrompt          string
	llmCategoryRouting map[string]string
	classifier         ClassifierFunc

	fallbackChain   []string
	defaultFallback string

	logger *zap.Logger
}

// NewEngine compiles the routing configuration. classifier may be nil
// even when the LLM layer is enabled in configuration; Route treats a
// nil classifier the same as any other classifier failure (falls
// through to the next step) rather than panicking.
func NewEngine(cfg *config.Config, classifier ClassifierFunc, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		staticEnabled:      cfg.StaticRules.Enabled,
		heuristicEnabled:   cfg.HeuristicRules.Enabled,
		llmEnabled:         cfg.LLMClassifier.Enabled,
		llmPrompt:          cfg.LLMClassifier.Prompt,
		llmCategoryRouting: cfg.LLMClassifier.CategoryRouting,
		classifier:         classifier,
		fallbackChain:      cfg.FallbackChain,
		defaultFallback:    "auto",
		logger:             logger,
	}

	for _, r := range cfg.StaticRules.Rules {
		m, err := CompileStaticMatch(r.Match)
		if err != nil {
			return nil, fmt.Errorf("static rule %q: %w", r.Name, err)
		}
		e.staticRules = append(e.staticRules, compiledRule{name: r.Name, matcher: m, routeTo: r.RouteTo})
	}

	for _, r := range cfg.HeuristicRules.Rules {
		m, err := CompileHeuristicMatch(r.Match)
		if err != nil {
			return nil, fmt.Errorf("heuristic rule %q: %w", r.Name, err)
		}
		e.heuristicRules = append(e.heuristicRules, compiledRule{name: r.Name, matcher: m, routeTo: r.RouteTo})
	}

	if len(e.fallbackChain) > 0 {
		e.defaultFallback = e.fallbackChain[0]
	}

	return e, nil
}

// Route produces a Decision for the given Context. Deterministic given
// identical ctx and configuration: every layer below is a pure function
// of ctx, and ElapsedMS is the only field that varies between calls
// with the same inputs - callers comparing decisions for determinism
// should compare (ProviderName, Layer, RuleName).
func (e *Engine) Route(ctx Context) Decision {
	start := time.Now()

	decision := e.decide(ctx)
	decision.ElapsedMS = time.Since(start).Milliseconds()

	return e.validateHealth(decision, ctx.Health)
}

func (e *Engine) decide(ctx Context) Decision {
	if e.staticEnabled {
		if d, ok := e.runStatic(ctx); ok {
			return d
		}
	}

	if e.heuristicEnabled {
		if d, ok := e.runHeuristic(ctx); ok {
			return d
		}
	}

	if e.llmEnabled {
		if d, ok := e.runLLMClassifier(ctx); ok {
			return d
		}
	}

	return e.fallback()
}

func (e *Engine) runStatic(ctx Context) (Decision, bool) {
	for _, rule := range e.staticRules {
		if rule.matcher.Match(ctx) {
			return Decision{
				ProviderName: rule.routeTo,
				Layer:        LayerStatic,
				RuleName:     rule.name,
				Confidence:   1.0,
				Reason:       fmt.Sprintf("static rule %q matched", rule.name),
			}, true
		}
	}
	return Decision{}, false
}

func (e *Engine) runHeuristic(ctx Context) (Decision, bool) {
	for _, rule := range e.heuristicRules {
		if rule.matcher.Match(ctx) {
			return Decision{
				ProviderName: rule.routeTo,
				Layer:        LayerHeuristic,
				RuleName:     rule.name,
				Confidence:   0.8,
				Reason:       fmt.Sprintf("heuristic rule %q matched", rule.name),
			}, true
		}
	}
	return Decision{}, false
}

const llmClassifierMaxChars = 500

func (e *Engine) runLLMClassifier(ctx Context) (Decision, bool) {
	if e.classifier == nil {
		e.logger.Debug("llm classifier enabled but no callback injected, falling through")
		return Decision{}, false
	}

	userMsg := ctx.LastUser
	if len(userMsg) > llmClassifierMaxChars {
		userMsg = userMsg[:llmClassifierMaxChars]
	}

	prompt := strings.ReplaceAll(e.llmPrompt, "{last_user_message}", userMsg)

	category, err := e.classifier(prompt)
	if err != nil {
		e.logger.Warn("llm classifier failed, falling through to fallback", zap.Error(err))
		return Decision{}, false
	}

	category = strings.ToUpper(strings.TrimSpace(category))
	provider, ok := e.llmCategoryRouting[category]
	if !ok {
		e.logger.Debug("llm classifier returned unknown category, falling through", zap.String("category", category))
		return Decision{}, false
	}

	return Decision{
		ProviderName: provider,
		Layer:        LayerLLMClassify,
		RuleName:     "category:" + category,
		Confidence:   0.7,
		Reason:       fmt.Sprintf("llm classifier mapped category %q", category),
	}, true
}

func (e *Engine) fallback() Decision {
	return Decision{
		ProviderName: e.defaultFallback,
		Layer:        LayerFallback,
		RuleName:     "no-match",
		Confidence:   0.3,
		Reason:       "no layer produced a decision",
	}
}

// DirectDecision synthesizes the bypass decision used when the caller's
// requested model exactly names a configured provider. The dispatcher
// calls this instead of Route entirely, never passing through the
// classification layers.
func DirectDecision(providerName string) Decision {
	return Decision{
		ProviderName: providerName,
		Layer:        LayerDirect,
		RuleName:     "explicit-model",
		Confidence:   1.0,
		Reason:       fmt.Sprintf("model_requested exactly matched configured provider %q", providerName),
	}
}

// validateHealth runs after a layer decides. If the chosen provider is
// unhealthy, it walks the fallback chain for the first healthy
// alternative. If it finds one, the original layer/rule is preserved,
// confidence is multiplied by 0.8, rule_name is suffixed "→fallback",
// and the reason is annotated. If no healthy fallback exists, the
// original (unhealthy) decision is returned unchanged - the dispatcher
// will still try it, since the first attempt is always tried regardless
// of health.
func (e *Engine) validateHealth(d Decision, health HealthSnapshot) Decision {
	if d.Layer == LayerDirect {
		return d
	}
	if health.isHealthy(d.ProviderName) {
		return d
	}

	for _, candidate := range e.fallbackChain {
		if candidate == d.ProviderName {
			continue
		}
		if health.isHealthy(candidate) {
			return Decision{
				ProviderName: candidate,
				Layer:        d.Layer,
				RuleName:     d.RuleName + "→fallback",
				Confidence:   d.Confidence * 0.8,
				Reason:       fmt.Sprintf("%s (original choice %q unhealthy)", d.Reason, d.ProviderName),
				ElapsedMS:    d.ElapsedMS,
			}
		}
	}

	return d
}
