// Package ratelimit implements the admission control layer: tiered,
// adaptive fixed-window rate limiting over a shared counter store.
//
// The pieces compose as follows:
//
//   - Resolver maps an endpoint to a category and a base limit, then
//     scales it by the caller's tier and the adaptive traffic multiplier.
//   - CounterStore provides atomic fixed-window counters; RedisStore is
//     the shared production backend, LocalStore a process-local one.
//   - Sampler observes global request volume per hour for adaptive
//     throttling.
//   - Gate ties them together and renders an admission Decision.
//   - Gate.Middleware enforces decisions at the HTTP boundary with
//     X-RateLimit headers and structured 429 responses.
//
// When the shared store is unreachable the gate fails open: requests are
// admitted without quota enforcement, availability over strictness.
package ratelimit
