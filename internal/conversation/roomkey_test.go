package conversation

import "testing"

func TestParseRoomKey_Valid(t *testing.T) {
	a, b, err := ParseRoomKey("5-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 5 || b != 9 {
		t.Errorf("expected (5, 9), got (%d, %d)", a, b)
	}

	// Order is preserved as supplied; canonicalization is separate.
	a, b, err = ParseRoomKey("9-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 9 || b != 5 {
		t.Errorf("expected (9, 5), got (%d, %d)", a, b)
	}
}

func TestParseRoomKey_Malformed(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"no separator", "59"},
		{"non-numeric left", "abc-9"},
		{"non-numeric right", "5-xyz"},
		{"trailing garbage", "5-9-extra"},
		{"zero id", "0-9"},
		{"negative id", "-5-9"},
		{"missing right", "5-"},
		{"missing left", "-9"},
		{"same user twice", "5-5"},
		{"float", "5.0-9"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ParseRoomKey(tc.key); err == nil {
				t.Errorf("expected error for key %q, got nil", tc.key)
			}
		})
	}
}

func TestCanonicalPair(t *testing.T) {
	low, high := CanonicalPair(9, 5)
	if low != 5 || high != 9 {
		t.Errorf("expected (5, 9), got (%d, %d)", low, high)
	}
	low, high = CanonicalPair(5, 9)
	if low != 5 || high != 9 {
		t.Errorf("expected (5, 9), got (%d, %d)", low, high)
	}
}

func TestCanonicalKey_Symmetric(t *testing.T) {
	if CanonicalKey(5, 9) != CanonicalKey(9, 5) {
		t.Error("canonical key must not depend on argument order")
	}
	if CanonicalKey(5, 9) != "5-9" {
		t.Errorf("expected %q, got %q", "5-9", CanonicalKey(5, 9))
	}
}
