package mathx

import "testing"

func TestClampAndBetween(t *testing.T) {
	if got := Clamp(5000, 0, 4095); got != 4095 {
		t.Fatalf("Clamp high = %d", got)
	}
	if got := Clamp(-3, 0, 100); got != 0 {
		t.Fatalf("Clamp low = %d", got)
	}
	if got := Clamp(7, 10, 0); got != 7 {
		t.Fatalf("Clamp swapped bounds = %d", got)
	}
	if !Between(3.3, 2.5, 4.5) || Between(5.1, 2.5, 4.5) {
		t.Fatal("Between mismatch")
	}
}

func TestRoundDiv(t *testing.T) {
	cases := []struct{ a, b, want uint32 }{
		{10, 4, 3},
		{9, 4, 2},
		{0, 16, 0},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := RoundDiv(c.a, c.b); got != c.want {
			t.Fatalf("RoundDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestMapU16(t *testing.T) {
	if got := MapU16(4095, 0, 4095, 0, 950); got != 950 {
		t.Fatalf("MapU16 top = %d", got)
	}
	if got := MapU16(0, 0, 4095, 0, 950); got != 0 {
		t.Fatalf("MapU16 bottom = %d", got)
	}
}
