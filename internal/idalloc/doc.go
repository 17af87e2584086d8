// Package idalloc issues human-facing sequential identifiers such as "s43".
//
// Each namespace owns a dedicated Counter. An Allocator advances it either
// with a single atomic increment (Atomic strategy) or with a
// load/compare-and-swap cycle retried on conflict (Transactional strategy).
// In both cases concurrent callers in one namespace receive distinct numbers
// forming a contiguous run; the next number is never derived from the
// business records carrying previously issued identifiers.
//
// The rendering policy of a namespace (prefix and zero-padding width) is
// recorded on the counter when it is created and cannot change afterwards,
// so lexicographic order of rendered identifiers keeps matching numeric
// order for callers that sort by the string.
package idalloc
