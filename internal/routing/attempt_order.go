package routing

// BuildAttemptOrder constructs the dispatcher's attempt sequence: the
// chosen provider first, then the fallback chain in order with the
// chosen provider (and any repeats) removed, so no provider name ever
// appears twice. Health is not considered here - the HTTP surface's
// dispatcher loop skips unhealthy entries at iteration time, except the
// first (chosen) attempt, which is always tried regardless of health.
func BuildAttemptOrder(chosen string, fallbackChain []string) []string {
	order := []string{chosen}
	seen := map[string]bool{chosen: true}
	for _, p := range fallbackChain {
		if seen[p] {
			continue
		}
		seen[p] = true
		order = append(order, p)
	}
	return order
}
