// Package dedupe provides a TTL cache for dispatch deduplication, so a
// message redelivered by the backplane is processed at most once per window.
package dedupe
