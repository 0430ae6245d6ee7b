// Package pipeline runs the fixed per-request decision sequence in front of
// every gateway handler:
//
//	rate limit -> authenticate -> authorize -> cache lookup -> handler
//
// Each step is a Stage returning an Outcome. A rejection short-circuits the
// sequence and is rendered as a JSON error; a cache hit short-circuits with
// the stored response. After the response is known, stages that also
// implement Finisher run in reverse order (cache populate, skip-successful
// release), followed by the driver's post-handler hooks (cache invalidation, audit of refused requests).
package pipeline
