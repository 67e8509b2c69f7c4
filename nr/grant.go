package nr

import "fmt"

// AllocType selects the frequency-domain resource allocation encoding.
type AllocType uint8

const (
	// AllocType0 encodes the grant as an RBG bitmap.
	AllocType0 AllocType = iota
	// AllocType1 encodes the grant as a contiguous PRB interval.
	AllocType1
)

// PrbGrant is a frequency-domain allocation, either an RBG bitmap
// (alloc type 0) or a contiguous PRB interval (alloc type 1). All PRB
// indices are BWP-relative.
type PrbGrant struct {
	alloc AllocType
	prbs  PrbInterval
	rbgs  RbgBitmap
}

// GrantFromInterval builds an alloc-type-1 grant.
func GrantFromInterval(iv PrbInterval) PrbGrant {
	return PrbGrant{alloc: AllocType1, prbs: iv}
}

// GrantFromRbgs builds an alloc-type-0 grant.
func GrantFromRbgs(rbgs RbgBitmap) PrbGrant {
	return PrbGrant{alloc: AllocType0, rbgs: rbgs}
}

// IsAllocType0 reports whether the grant is RBG-bitmap encoded.
func (g PrbGrant) IsAllocType0() bool { return g.alloc == AllocType0 }

// IsAllocType1 reports whether the grant is a contiguous PRB interval.
func (g PrbGrant) IsAllocType1() bool { return g.alloc == AllocType1 }

// Prbs returns the PRB interval of an alloc-type-1 grant.
func (g PrbGrant) Prbs() PrbInterval { return g.prbs }

// Rbgs returns the RBG bitmap of an alloc-type-0 grant.
func (g PrbGrant) Rbgs() RbgBitmap { return g.rbgs }

// NofPrbs returns the number of PRBs the grant occupies, given the BWP
// geometry (needed to expand RBGs of an alloc-type-0 grant).
func (g PrbGrant) NofPrbs(bwpStart, bwpWidth, p uint32) uint32 {
	if g.IsAllocType1() {
		return g.prbs.Length()
	}
	var n uint32
	for i := uint32(0); i < g.rbgs.Size(); i++ {
		if g.rbgs.Test(i) {
			n += RbgInterval(i, bwpStart, bwpWidth, p).Length()
		}
	}
	return n
}

func (g PrbGrant) String() string {
	if g.IsAllocType1() {
		return g.prbs.String()
	}
	return fmt.Sprintf("rbgs(0x%x)", g.rbgs.ToUint64())
}

// BwpRbBitmap maintains consistent PRB and RBG views of the allocations
// made on one BWP within a slot. It is the "occupied" mask consulted by
// the PDSCH and PUSCH allocators.
type BwpRbBitmap struct {
	prbs     PrbBitmap
	rbgs     RbgBitmap
	bwpStart uint32
	bwpWidth uint32
	p        uint32
}

// NewBwpRbBitmap builds an empty mask for a BWP.
func NewBwpRbBitmap(rbWidth, startRb uint32, rbgCfg1 bool) BwpRbBitmap {
	return BwpRbBitmap{
		prbs:     NewPrbBitmap(rbWidth),
		rbgs:     NewRbgBitmap(NofRbgs(rbWidth, startRb, rbgCfg1)),
		bwpStart: startRb,
		bwpWidth: rbWidth,
		p:        RbgSize(rbWidth, rbgCfg1),
	}
}

// P returns the RBG size of the underlying BWP.
func (b BwpRbBitmap) P() uint32 { return b.p }

// NofPrbs returns the BWP width.
func (b BwpRbBitmap) NofPrbs() uint32 { return b.bwpWidth }

// NofRbgs returns the number of RBGs in the BWP.
func (b BwpRbBitmap) NofRbgs() uint32 { return b.rbgs.Size() }

// Prbs returns the PRB view of the occupied mask.
func (b BwpRbBitmap) Prbs() PrbBitmap { return b.prbs }

// Rbgs returns the RBG view of the occupied mask.
func (b BwpRbBitmap) Rbgs() RbgBitmap { return b.rbgs }

// OrGrant adds a grant to the mask, keeping both views consistent.
func (b *BwpRbBitmap) OrGrant(g PrbGrant) {
	if g.IsAllocType1() {
		if g.Prbs().Empty() {
			return
		}
		b.prbs.FillInterval(g.Prbs())
		lo := b.prbToRbg(g.Prbs().Start())
		hi := b.prbToRbg(g.Prbs().Stop() - 1)
		for i := lo; i <= hi; i++ {
			b.rbgs.Set(i)
		}
		return
	}
	for i := uint32(0); i < g.Rbgs().Size(); i++ {
		if g.Rbgs().Test(i) {
			b.rbgs.Set(i)
			b.prbs.FillInterval(RbgInterval(i, b.bwpStart, b.bwpWidth, b.p))
		}
	}
}

// OrInterval adds a contiguous PRB range to the mask.
func (b *BwpRbBitmap) OrInterval(iv PrbInterval) { b.OrGrant(GrantFromInterval(iv)) }

// CollidesGrant reports whether the grant overlaps the occupied mask.
func (b BwpRbBitmap) CollidesGrant(g PrbGrant) bool {
	if g.IsAllocType1() {
		return b.prbs.IntersectsInterval(g.Prbs())
	}
	return b.rbgs.Intersects(g.Rbgs())
}

// Clone returns an independent copy of the mask.
func (b BwpRbBitmap) Clone() BwpRbBitmap {
	c := b
	c.prbs = b.prbs.Clone()
	c.rbgs = b.rbgs.Clone()
	return c
}

// ClearGrant removes a previously added grant from the mask. The RBG view
// is rebuilt from the PRB projection so boundary RBGs shared with other
// allocations stay set.
func (b *BwpRbBitmap) ClearGrant(g PrbGrant) {
	if g.IsAllocType1() {
		for i := g.Prbs().Start(); i < g.Prbs().Stop() && i < b.bwpWidth; i++ {
			b.prbs.bs.Clear(uint(i))
		}
	} else {
		for i := uint32(0); i < g.Rbgs().Size(); i++ {
			if g.Rbgs().Test(i) {
				iv := RbgInterval(i, b.bwpStart, b.bwpWidth, b.p)
				for prb := iv.Start(); prb < iv.Stop(); prb++ {
					b.prbs.bs.Clear(uint(prb))
				}
			}
		}
	}
	b.rbgs.Reset()
	for i := uint32(0); i < b.rbgs.Size(); i++ {
		if b.prbs.IntersectsInterval(RbgInterval(i, b.bwpStart, b.bwpWidth, b.p)) {
			b.rbgs.Set(i)
		}
	}
}

// Reset clears both views.
func (b *BwpRbBitmap) Reset() {
	b.prbs.Reset()
	b.rbgs.Reset()
}

func (b BwpRbBitmap) prbToRbg(prb uint32) uint32 {
	return (prb + b.bwpStart%b.p) / b.p
}
