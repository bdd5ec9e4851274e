package routing

import (
	"fmt"
	"strings"

	"github.com/clawgate/clawgate/internal/config"
)

// Matcher is the discriminated-sum interface every rule's compiled
// predicate implements. Modeling match kinds as distinct types (rather
// than testing which optional field of a config.MatchConfig is set, over
// and over, at evaluation time) means an unrecognized or empty matcher
// is caught once, at compile time, as a configuration error.
type Matcher interface {
	Match(ctx Context) bool
}

// --- static-rule matchers ---------------------------------------------

type anyMatcher struct{ subs []Matcher }

func (m anyMatcher) Match(ctx Context) bool {
	for _, s := range m.subs {
		if s.Match(ctx) {
			return true
		}
	}
	return false
}

type modelRequestedMatcher struct{ patterns []string }

func (m modelRequestedMatcher) Match(ctx Context) bool {
	for _, p := range m.patterns {
		if strings.Contains(ctx.ModelRequested, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

type systemPromptContainsMatcher struct{ keywords []string }

func (m systemPromptContainsMatcher) Match(ctx Context) bool {
	lower := strings.ToLower(ctx.System)
	for _, kw := range m.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

type headerContainsMatcher struct {
	header   string
	patterns []string
}

func (m headerContainsMatcher) Match(ctx Context) bool {
	value, ok := ctx.Headers[strings.ToLower(m.header)]
	if !ok {
		return false
	}
	lower := strings.ToLower(value)
	for _, p := range m.patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// --- heuristic-rule matchers -------------------------------------------

type fallthroughMatcher struct{}

func (fallthroughMatcher) Match(Context) bool { return true }

type hasToolsMatcher struct{ want bool }

func (m hasToolsMatcher) Match(ctx Context) bool { return ctx.HasTools == m.want }

type estimatedTokensMatcher struct {
	lessThan    *int
	greaterThan *int
}

func (m estimatedTokensMatcher) Match(ctx Context) bool {
	if m.lessThan != nil && !(ctx.EstimatedTokens < *m.lessThan) {
		return false
	}
	if m.greaterThan != nil && !(ctx.EstimatedTokens > *m.greaterThan) {
		return false
	}
	return m.lessThan != nil || m.greaterThan != nil
}

// messageKeywordsMatcher counts keyword occurrences only in the last
// user message - never the system prompt, never earlier turns. System
// prompts are long, keyword-dense instructions that would otherwise
// inflate every request into whatever tier a rule targets.
type messageKeywordsMatcher struct {
	anyOf      []string
	minMatches int
}

func (m messageKeywordsMatcher) Match(ctx Context) bool {
	lower := strings.ToLower(ctx.LastUser)
	count := 0
	for _, kw := range m.anyOf {
		// Plain case-insensitive substring match, deliberately not
		// word-boundaried: a short keyword like "r1" also matches
		// inside "r1000".
		if strings.Contains(lower, strings.ToLower(kw)) {
			count++
		}
	}
	min := m.minMatches
	if min <= 0 {
		min = 1
	}
	return count >= min
}

// --- compilation ---------------------------------------------------------

// CompileStaticMatch builds a Matcher from a config.MatchConfig for a
// static rule. The static keys combine as a union: evaluation checks
// each present key in turn and the rule matches as soon as any of them
// hits, so a rule whose only key misses terminates false, and a rule
// combining several keys fails only after every one has missed. An
// empty match object, or one using heuristic-only predicates, is a
// configuration error.
func CompileStaticMatch(m config.MatchConfig) (Matcher, error) {
	if m.Fallthrough != nil || m.HasTools != nil || m.EstimatedTokens != nil || m.MessageKeywords != nil {
		return nil, fmt.Errorf("static rule match uses a heuristic-only predicate")
	}

	var subs []Matcher

	if len(m.Any) > 0 {
		inner := make([]Matcher, 0, len(m.Any))
		for _, sub := range m.Any {
			compiled, err := CompileStaticMatch(sub)
			if err != nil {
				return nil, err
			}
			inner = append(inner, compiled)
		}
		subs = append(subs, anyMatcher{subs: inner})
	}
	if len(m.ModelRequested) > 0 {
		subs = append(subs, modelRequestedMatcher{patterns: m.ModelRequested})
	}
	if len(m.SystemPromptContains) > 0 {
		subs = append(subs, systemPromptContainsMatcher{keywords: m.SystemPromptContains})
	}
	for header, patterns := range m.HeaderContains {
		subs = append(subs, headerContainsMatcher{header: header, patterns: patterns})
	}

	switch len(subs) {
	case 0:
		return nil, fmt.Errorf("static rule match has no recognized predicate")
	case 1:
		return subs[0], nil
	default:
		return anyMatcher{subs: subs}, nil
	}
}

// CompileHeuristicMatch builds a Matcher from a config.MatchConfig for a
// heuristic rule, rejecting static-only fields and empty matchers.
func CompileHeuristicMatch(m config.MatchConfig) (Matcher, error) {
	if len(m.Any) > 0 || len(m.ModelRequested) > 0 || len(m.SystemPromptContains) > 0 || len(m.HeaderContains) > 0 {
		return nil, fmt.Errorf("heuristic rule match uses a static-only predicate")
	}

	switch {
	case m.Fallthrough != nil && *m.Fallthrough:
		return fallthroughMatcher{}, nil
	case m.HasTools != nil:
		return hasToolsMatcher{want: *m.HasTools}, nil
	case m.EstimatedTokens != nil:
		return estimatedTokensMatcher{lessThan: m.EstimatedTokens.LessThan, greaterThan: m.EstimatedTokens.GreaterThan}, nil
	case m.MessageKeywords != nil:
		return messageKeywordsMatcher{anyOf: m.MessageKeywords.AnyOf, minMatches: m.MessageKeywords.MinMatches}, nil
	}

	return nil, fmt.Errorf("heuristic rule match has no recognized predicate")
}
