// Package ratelimit implements fixed-window request counters.
//
// A Limiter allows at most Max hits per key within a window of length
// Window. The first hit for a key opens a window; every hit increments the
// window's counter, and a hit is denied once the post-increment count exceeds
// Max. When the window elapses the next hit opens a fresh one.
//
// Counters are pluggable: MemoryCounter keeps windows in process and is
// suitable for a single instance, RedisCounter shares windows across
// instances. Losing counter state only relaxes throttling temporarily.
//
// Named limiters (signup, login, password_reset, comment, reaction, cooked,
// feedback) each keep their own windows, so exhausting one budget never
// affects another.
package ratelimit
