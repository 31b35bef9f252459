/*
Package retry provides the three orthogonal recovery wrappers shared by
watchers and the orchestrator:

  - Do: exponential backoff with full jitter around a unit of work;
    permanent, policy, integrity and fatal errors propagate immediately
  - Breakers: per-resource circuit breakers (closed → open → half-open)
  - Limiters: per-channel token buckets (email 10/h, social_post 3/h,
    payment 3/day by default)

All three take time from a single Clock so tests advance it
deterministically. Breaker and bucket state is process-local and rebuilt
empty on start; nothing here persists outside the vault.
*/
package retry
