// ABOUTME: Canonical conversation key derivation for participant pairs
// ABOUTME: Pure, symmetric, and injective over unordered identifier pairs

package relay

// Key derives the canonical conversation key for a pair of participants.
// The key is order-independent: Key(a, b) == Key(b, a). Participant
// identifiers cannot contain ':' (see ValidParticipantID), so distinct
// unordered pairs always map to distinct keys.
func Key(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
