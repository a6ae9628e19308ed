package usecase

import "testing"

func TestBuyLadder(t *testing.T) {
	m := testMarket()
	total := int64(100_001) // 1000.01
	last := int64(50_000_00)

	rungs := BuyLadder(m, total, last, 4, 1.0)
	if len(rungs) != 4 {
		t.Fatalf("rungs = %d, want 4", len(rungs))
	}

	var sum int64
	prev := last
	for i, r := range rungs {
		if r.Price >= last {
			t.Errorf("rung %d price %d not below last %d", i, r.Price, last)
		}
		if r.Price >= prev && i > 0 {
			t.Errorf("rung %d price %d not descending", i, r.Price)
		}
		prev = r.Price
		sum += r.Size
	}
	if sum != total {
		t.Fatalf("rung sizes sum to %d, want %d", sum, total)
	}
	// the rounding remainder lands on the final rung
	if rungs[3].Size != total-3*(total/4) {
		t.Fatalf("final rung size = %d", rungs[3].Size)
	}
}

func TestBuyLadderCollapsesBelowCostMin(t *testing.T) {
	m := testMarket()
	total := int64(30_00) // four rungs of 7.50 would be under the 10.00 minimum
	last := int64(50_000_00)

	rungs := BuyLadder(m, total, last, 4, 1.0)
	if len(rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(rungs))
	}
	if rungs[0].Size != total {
		t.Fatalf("collapsed rung size = %d, want %d", rungs[0].Size, total)
	}
	if rungs[0].Price >= last {
		t.Fatalf("collapsed rung price %d not below last %d", rungs[0].Price, last)
	}
}

func TestSellLadder(t *testing.T) {
	m := testMarket()
	total := int64(400_001) // base amount
	last := int64(50_000_00)

	rungs := SellLadder(m, total, last, 4, 1.0)
	if len(rungs) != 4 {
		t.Fatalf("rungs = %d, want 4", len(rungs))
	}
	var sum int64
	for i, r := range rungs {
		if r.Price <= last {
			t.Errorf("rung %d price %d not above last %d", i, r.Price, last)
		}
		sum += r.Size
	}
	if sum != total {
		t.Fatalf("rung sizes sum to %d, want %d", sum, total)
	}
}

func TestSellLadderCollapsesBelowAmountMin(t *testing.T) {
	m := testMarket()
	total := int64(20_001) // four rungs would be under the amount minimum

	rungs := SellLadder(m, total, 50_000_00, 4, 1.0)
	if len(rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(rungs))
	}
	if rungs[0].Size != total {
		t.Fatalf("collapsed rung size = %d, want %d", rungs[0].Size, total)
	}
}

func TestLadderEmptyOnZeroTotal(t *testing.T) {
	m := testMarket()
	if rungs := BuyLadder(m, 0, 50_000_00, 4, 1.0); len(rungs) != 0 {
		t.Fatalf("zero total produced %d rungs", len(rungs))
	}
	if rungs := SellLadder(m, -5, 50_000_00, 4, 1.0); len(rungs) != 0 {
		t.Fatalf("negative total produced %d rungs", len(rungs))
	}
}
