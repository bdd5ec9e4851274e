package metrics

import "github.com/clawgate/clawgate/internal/config"

// CalcCost computes the USD cost of one request. Pricing is USD per
// million tokens; cacheRead defaults to input when the config omits it.
// When either cacheHit or cacheMiss is non-zero, the cache-aware formula
// is used (cacheMiss tokens priced at the full input rate, cacheHit
// tokens at the cheaper cache-read rate); otherwise cost falls back to
// the plain prompt/completion formula. Zero token counts always yield
// zero cost.
//
// For fixed total tokens T = cacheHit+cacheMiss, cost is linear in
// cacheHit with slope (cacheRead-input)/1e6, so it strictly decreases
// as more of the prompt is served from cache whenever cacheRead < input.
func CalcCost(promptTokens, completionTokens int, pricing config.Pricing, cacheHitTokens, cacheMissTokens int) float64 {
	output := pricing.Output

	if cacheHitTokens != 0 || cacheMissTokens != 0 {
		cacheRead := pricing.Input
		if pricing.CacheRead != nil {
			cacheRead = *pricing.CacheRead
		}
		return (float64(cacheHitTokens)*cacheRead+float64(cacheMissTokens)*pricing.Input)/1e6 +
			float64(completionTokens)*output/1e6
	}

	return (float64(promptTokens)*pricing.Input+float64(completionTokens)*output)/1e6
}
