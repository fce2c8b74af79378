package addr

import "testing"

// TestAddWrapped verifies that bank-wrapped addition never changes the bank
// byte.
func TestAddWrapped(t *testing.T) {
	tests := []struct {
		start  int
		offset int
		want   int
	}{
		{0x008000, 1, 0x008001},
		{0x00ffff, 1, 0x000000},
		{0x05ffff, 1, 0x050000},
		{0x05ffff, 0x10, 0x05000f},
		{0x120000, -1, 0x12ffff},
		{0x7e8000, 0x8000, 0x7e0000},
	}
	for _, tc := range tests {
		got := FromInt(tc.start).AddWrapped(tc.offset)
		if got.Int() != tc.want {
			t.Errorf("AddWrapped(%06x, %d): got %s, want $%06x",
				tc.start, tc.offset, got, tc.want)
		}
		if got.Bank() != FromInt(tc.start).Bank() {
			t.Errorf("AddWrapped(%06x, %d) changed banks", tc.start, tc.offset)
		}
	}
}

// TestAddUnwrapped verifies plain 25-bit addition.
func TestAddUnwrapped(t *testing.T) {
	if got := FromInt(0x00ffff).AddUnwrapped(1); got.Int() != 0x010000 {
		t.Errorf("AddUnwrapped: got %s, want $010000", got)
	}
}

// TestSubtractWrapped verifies same-bank signed distances.
func TestSubtractWrapped(t *testing.T) {
	tests := []struct {
		lhs, rhs int
		want     int
	}{
		{0x058000, 0x058000, 0},
		{0x058002, 0x058000, 2},
		{0x058000, 0x058002, -2},
		{0x050000, 0x05ffff, 1},
		{0x05ffff, 0x050000, -1},
		{0x057fff, 0x050000, 0x7fff},
		{0x058000, 0x050000, -0x8000},
	}
	for _, tc := range tests {
		got, err := FromInt(tc.lhs).SubtractWrapped(FromInt(tc.rhs))
		if err != nil {
			t.Errorf("SubtractWrapped(%06x, %06x): unexpected error %v",
				tc.lhs, tc.rhs, err)
			continue
		}
		if got != tc.want {
			t.Errorf("SubtractWrapped(%06x, %06x): got %d, want %d",
				tc.lhs, tc.rhs, got, tc.want)
		}
	}

	if _, err := FromInt(0x018000).SubtractWrapped(FromInt(0x028000)); err == nil {
		t.Error("SubtractWrapped across banks should fail")
	}
}

// TestBankSplit verifies the bank / bank-address split.
func TestBankSplit(t *testing.T) {
	a := FromInt(0x12abcd)
	if a.Bank() != 0x12 {
		t.Errorf("Bank: got %02x, want 12", a.Bank())
	}
	if a.BankAddress() != 0xabcd {
		t.Errorf("BankAddress: got %04x, want abcd", a.BankAddress())
	}
	if FromBank(0x12, 0xabcd) != a {
		t.Error("FromBank does not agree with FromInt")
	}
	if a.String() != "$12abcd" {
		t.Errorf("String: got %q", a.String())
	}
}

// TestCast verifies width truncation and sign extension.
func TestCast(t *testing.T) {
	tests := []struct {
		numType NumericType
		value   int
		want    int
	}{
		{Byte, 0x1ff, 0xff},
		{Word, 0x12345, 0x2345},
		{Long, 0x1234567, 0x234567},
		{SignedByte, 0x80, -0x80},
		{SignedByte, 0x7f, 0x7f},
		{SignedWord, 0xffff, -1},
		{SignedLong, 0x800000, -0x800000},
		{Unknown, -42, -42},
	}
	for _, tc := range tests {
		if got := Cast(tc.numType, tc.value); got != tc.want {
			t.Errorf("Cast(%d, %x): got %x, want %x", tc.numType, tc.value, got, tc.want)
		}
	}
}

// TestArithmeticConversion verifies the binary result-type rules.
func TestArithmeticConversion(t *testing.T) {
	tests := []struct {
		lhs, rhs, want NumericType
	}{
		{Byte, Word, Word},
		{Word, Byte, Word},
		{Byte, Long, Long},
		{Long, Word, Long},
		{Unknown, Word, Word},
		{Byte, Unknown, Byte},
		{SignedByte, Word, Word},
		{Unknown, Unknown, Unknown},
	}
	for _, tc := range tests {
		if got := ArithmeticConversion(tc.lhs, tc.rhs); got != tc.want {
			t.Errorf("ArithmeticConversion(%d, %d): got %d, want %d",
				tc.lhs, tc.rhs, got, tc.want)
		}
	}
}
