// Package ratelimit tracks per-client request counts across independently
// configured tiers.
//
// Every tier has a window, a threshold, a scope selecting which requests it
// inspects, and a key source (client IP or principal id). A request must
// pass every matching tier. Three tier kinds exist:
//
//   - fixed window: count per key, reset when the window has elapsed since
//     the key's window start; rejects once the count exceeds the threshold
//   - token bucket: golang.org/x/time/rate per key, for smooth throttling
//   - slow down: never rejects, delays requests linearly once a soft
//     threshold is crossed, up to a maximum delay
//
// A fixed-window tier may skip successful requests. Its increment is taken
// up front and handed back through Verdict.Release once the response is
// known to be successful, so only failures accumulate.
//
// State is process-local. Window maps are split into shards, each guarded by
// its own mutex held only for the read-modify-write of one entry.
package ratelimit
