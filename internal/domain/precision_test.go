package domain

import "testing"

func TestTransform(t *testing.T) {
	cases := []struct {
		in   string
		prec int
		want int64
	}{
		{"0", 8, 0},
		{"1", 8, 100_000_000},
		{"1.5", 8, 150_000_000},
		{"0.00000001", 8, 1},
		{"-2.25", 2, -225},
		{"4166.66", 2, 416_666},
		{"120000", 2, 12_000_000},
		// digits beyond the precision are dropped, not rounded
		{"0.123456789", 8, 12_345_678},
		{"0.999999999", 8, 99_999_999},
	}
	for _, c := range cases {
		got, err := Transform(c.in, c.prec)
		if err != nil {
			t.Fatalf("Transform(%q, %d): %v", c.in, c.prec, err)
		}
		if got != c.want {
			t.Errorf("Transform(%q, %d) = %d, want %d", c.in, c.prec, got, c.want)
		}
	}
}

func TestTransformRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1e5"} {
		if _, err := Transform(in, 8); err == nil {
			t.Errorf("Transform(%q) accepted", in)
		}
	}
}

func TestFormatRoundtrip(t *testing.T) {
	cases := []struct {
		value int64
		prec  int
		want  string
	}{
		{0, 8, "0.00000000"},
		{1, 8, "0.00000001"},
		{150_000_000, 8, "1.50000000"},
		{-225, 2, "-2.25"},
		{416_666, 2, "4166.66"},
		{42, 0, "42"},
	}
	for _, c := range cases {
		got := Format(c.value, c.prec)
		if got != c.want {
			t.Errorf("Format(%d, %d) = %q, want %q", c.value, c.prec, got, c.want)
		}
		back, err := Transform(got, c.prec)
		if err != nil || back != c.value {
			t.Errorf("Transform(Format(%d)) = %d, %v", c.value, back, err)
		}
	}
}

func TestDivTruncates(t *testing.T) {
	// 50 / 1200 at precision 8: the exact quotient 0.041666... truncates
	if got := Div(5_000_000_000, 120_000_000_000, 8); got != 4_166_666 {
		t.Fatalf("Div = %d, want 4166666", got)
	}
	if got := Div(1, 3, 8); got != 33_333_333 {
		t.Fatalf("Div(1,3,8) = %d, want 33333333", got)
	}
	if got := Div(10, 0, 8); got != 0 {
		t.Fatalf("Div by zero = %d, want 0", got)
	}
}

func TestTruncate(t *testing.T) {
	// 1.23456789 at precision 8 clamped to 5 decimals
	if got := Truncate(123_456_789, 8, 5); got != 123_456_000 {
		t.Fatalf("Truncate = %d, want 123456000", got)
	}
	if got := Truncate(123_456_789, 8, 8); got != 123_456_789 {
		t.Fatalf("Truncate keep=prec = %d", got)
	}
}

func TestCostAndAmountAt(t *testing.T) {
	// 1.5 base at 30000.00 quote = 45000.00
	amount := int64(150_000_000) // precision 8
	price := int64(3_000_000)    // precision 2
	cost := Cost(amount, price, 8)
	if cost != 4_500_000 {
		t.Fatalf("Cost = %d, want 4500000", cost)
	}
	back := AmountAt(cost, price, 8)
	if back != amount {
		t.Fatalf("AmountAt = %d, want %d", back, amount)
	}
	if got := PriceOf(cost, amount, 8); got != price {
		t.Fatalf("PriceOf = %d, want %d", got, price)
	}
}

func TestPortion(t *testing.T) {
	if got := Portion(1_000_000, 50); got != 500_000 {
		t.Fatalf("Portion 50%% = %d", got)
	}
	if got := Portion(1_000_000, 0.1); got != 1_000 {
		t.Fatalf("Portion 0.1%% = %d", got)
	}
	if got := Portion(1_000_000, 0); got != 0 {
		t.Fatalf("Portion 0%% = %d", got)
	}
}
