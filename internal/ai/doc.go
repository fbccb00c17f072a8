// Package ai requests track suggestions from an OpenRouter-compatible chat completions API.
//
// [Client] handles transport: bearer auth, a [rate.Limiter] and a circuit breaker. Every failure it
// returns wraps [shared.ErrProviderUnavailable] so callers can treat it as "zero suggestions".
//
// [Suggester] renders listening context into prompts and parses the answers. Model output is not
// trusted to be well formed: [ExtractObjects] strips markdown fences and recovers the complete
// objects of a truncated response before decoding.
package ai
