// Package validation confirms AI track suggestions against the search provider.
//
// Each suggestion is searched with a strict field-filtered query and then a loose one; the best
// candidate scoring at least [match.AcceptThreshold] wins. Batches resolve concurrently and dedup
// sequentially afterwards. When a batch falls short of its target, [Pipeline.PerformBackfill] asks
// the provider for replacements for at most [MaxBackfillRounds] rounds.
package validation
