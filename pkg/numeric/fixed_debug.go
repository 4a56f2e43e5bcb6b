//go:build flox_debug

package numeric

// In a debug build (-tags flox_debug) every checked arithmetic op verifies
// against overflow and panics instead of silently wrapping.
const checkOverflow = true
