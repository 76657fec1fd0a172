// Package conversation resolves an unordered pair of user identifiers to a
// single canonical conversation record and persists its messages. The pair
// key format ("<idA>-<idB>") doubles as the WebSocket room name.
package conversation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRoomKey parses a client-supplied pair key of the form "<idA>-<idB>"
// into its two user identifiers. Both parts must be positive integers;
// anything else (wrong arity, non-numeric input, zero or negative ids) is
// rejected rather than silently ignored.
func ParseRoomKey(key string) (int64, int64, error) {
	left, right, found := strings.Cut(key, "-")
	if !found {
		return 0, 0, fmt.Errorf("conversation: invalid pair key %q", key)
	}

	a, err := strconv.ParseInt(left, 10, 64)
	if err != nil || a <= 0 {
		return 0, 0, fmt.Errorf("conversation: invalid user id in pair key %q", key)
	}
	b, err := strconv.ParseInt(right, 10, 64)
	if err != nil || b <= 0 {
		return 0, 0, fmt.Errorf("conversation: invalid user id in pair key %q", key)
	}
	if a == b {
		return 0, 0, fmt.Errorf("conversation: pair key %q names the same user twice", key)
	}
	return a, b, nil
}

// CanonicalPair orders two user identifiers as (low, high). Every storage
// and room lookup goes through this ordering so that {X, Y} and {Y, X}
// always land on the same row and the same room.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// CanonicalKey returns the canonical room key for a pair, "<low>-<high>".
func CanonicalKey(a, b int64) string {
	low, high := CanonicalPair(a, b)
	return strconv.FormatInt(low, 10) + "-" + strconv.FormatInt(high, 10)
}
