package nr

import (
	"testing"

	"pgregory.net/rapid"
)

func TestRbgSizeTable(t *testing.T) {
	cases := []struct {
		width uint32
		cfg1  bool
		p     uint32
	}{
		{24, true, 2}, {24, false, 4},
		{52, true, 4}, {52, false, 8},
		{100, true, 8}, {100, false, 16},
		{275, true, 16}, {275, false, 16},
	}
	for _, c := range cases {
		if got := RbgSize(c.width, c.cfg1); got != c.p {
			t.Fatalf("RbgSize(%d, %v) = %d, want %d", c.width, c.cfg1, got, c.p)
		}
	}
}

func TestNofRbgs(t *testing.T) {
	// TS 38.214: ceil((width + start mod P) / P).
	if got := NofRbgs(100, 0, true); got != 13 {
		t.Fatalf("NofRbgs(100, 0) = %d", got)
	}
	if got := NofRbgs(52, 2, true); got != 14 {
		t.Fatalf("NofRbgs(52, 2) = %d", got)
	}
}

func TestFindEmptyInterval(t *testing.T) {
	b := NewPrbBitmap(20)
	b.Fill(4, 8)
	b.Fill(14, 16)

	if iv := b.FindEmptyInterval(4, 0); iv.Start() != 0 || iv.Length() != 4 {
		t.Fatalf("got %s", iv)
	}
	if iv := b.FindEmptyInterval(6, 0); iv.Start() != 8 || iv.Length() != 6 {
		t.Fatalf("got %s", iv)
	}
	// Nothing of length 10: longest run returned.
	if iv := b.FindEmptyInterval(10, 0); iv.Start() != 8 || iv.Length() != 6 {
		t.Fatalf("got %s", iv)
	}
	if iv := b.FindEmptyInterval(2, 15); iv.Start() != 16 || iv.Length() != 2 {
		t.Fatalf("got %s", iv)
	}
}

func TestBwpRbBitmapGrantViews(t *testing.T) {
	m := NewBwpRbBitmap(52, 0, true) // P=4, 13 RBGs
	m.OrInterval(NewPrbInterval(3, 9))

	if !m.Prbs().Test(3) || !m.Prbs().Test(8) || m.Prbs().Test(9) {
		t.Fatal("PRB view wrong")
	}
	// PRBs 3..8 touch RBGs 0, 1, 2.
	for _, rbg := range []uint32{0, 1, 2} {
		if !m.Rbgs().Test(rbg) {
			t.Fatalf("RBG %d not set", rbg)
		}
	}
	if m.Rbgs().Test(3) {
		t.Fatal("RBG 3 must not be set")
	}

	if !m.CollidesGrant(GrantFromInterval(NewPrbInterval(8, 10))) {
		t.Fatal("expected collision")
	}
	if m.CollidesGrant(GrantFromInterval(NewPrbInterval(9, 12))) {
		t.Fatal("unexpected collision")
	}
}

func TestBwpRbBitmapClearGrant(t *testing.T) {
	m := NewBwpRbBitmap(52, 0, true)
	m.OrInterval(NewPrbInterval(0, 4))
	m.OrInterval(NewPrbInterval(4, 8))

	m.ClearGrant(GrantFromInterval(NewPrbInterval(4, 8)))
	if m.Prbs().Test(4) || !m.Prbs().Test(3) {
		t.Fatal("clear removed wrong PRBs")
	}
	// RBG 0 (PRBs 0..3) still occupied, RBG 1 free again.
	if !m.Rbgs().Test(0) || m.Rbgs().Test(1) {
		t.Fatal("RBG view not rebuilt correctly")
	}
}

func TestRbgBitmapToUint64(t *testing.T) {
	b := NewRbgBitmap(13)
	b.Set(0)
	b.Set(12)
	// RBG 0 maps to the MSB of the 13-bit field.
	want := uint64(1<<12 | 1)
	if got := b.ToUint64(); got != want {
		t.Fatalf("ToUint64 = %#x, want %#x", got, want)
	}
}

func TestGrantProjectionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.Uint32Range(10, 275).Draw(t, "width")
		start := rapid.Uint32Range(0, 20).Draw(t, "start")
		lo := rapid.Uint32Range(0, width-1).Draw(t, "lo")
		hi := rapid.Uint32Range(lo+1, width).Draw(t, "hi")

		m := NewBwpRbBitmap(width, start, true)
		m.OrInterval(NewPrbInterval(lo, hi))

		// Every PRB of the interval is set, and every set RBG contains at
		// least one set PRB.
		for prb := lo; prb < hi; prb++ {
			if !m.Prbs().Test(prb) {
				t.Fatalf("PRB %d not set", prb)
			}
		}
		p := m.P()
		for rbg := uint32(0); rbg < m.NofRbgs(); rbg++ {
			iv := RbgInterval(rbg, start, width, p)
			if m.Rbgs().Test(rbg) != iv.Overlaps(NewPrbInterval(lo, hi)) {
				t.Fatalf("RBG %d projection mismatch (iv=%s)", rbg, iv)
			}
		}
	})
}

func TestRivRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nofPrb := rapid.Uint32Range(1, 275).Draw(t, "nof_prb")
		start := rapid.Uint32Range(0, nofPrb-1).Draw(t, "start")
		length := rapid.Uint32Range(1, nofPrb-start).Draw(t, "len")

		riv := RivType1(nofPrb, start, length)
		gotStart, gotLen := RivType1Decode(nofPrb, riv)
		if gotStart != start || gotLen != length {
			t.Fatalf("riv=%d decoded to (%d, %d), want (%d, %d)",
				riv, gotStart, gotLen, start, length)
		}
	})
}
