//go:build !flox_debug

package numeric

// Release builds skip overflow checks on the hot path.
const checkOverflow = false
