package nr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MaxPrbs is the widest NR carrier in PRBs.
const MaxPrbs = 275

// MaxRbgs is the maximum number of resource block groups per BWP.
const MaxRbgs = 18

// PrbInterval is a half-open PRB range [Start, Stop).
type PrbInterval struct {
	start uint32
	stop  uint32
}

// NewPrbInterval builds the interval [start, stop).
func NewPrbInterval(start, stop uint32) PrbInterval {
	if stop < start {
		stop = start
	}
	return PrbInterval{start: start, stop: stop}
}

// Start returns the first PRB of the interval.
func (p PrbInterval) Start() uint32 { return p.start }

// Stop returns one past the last PRB of the interval.
func (p PrbInterval) Stop() uint32 { return p.stop }

// Length returns the interval width in PRBs.
func (p PrbInterval) Length() uint32 { return p.stop - p.start }

// Empty reports whether the interval contains no PRBs.
func (p PrbInterval) Empty() bool { return p.start >= p.stop }

// Overlaps reports whether two intervals share any PRB.
func (p PrbInterval) Overlaps(o PrbInterval) bool {
	return p.start < o.stop && o.start < p.stop
}

// Contains reports whether prb falls inside the interval.
func (p PrbInterval) Contains(prb uint32) bool { return prb >= p.start && prb < p.stop }

func (p PrbInterval) String() string { return fmt.Sprintf("[%d, %d)", p.start, p.stop) }

// PrbBitmap is a fixed-size bitmap over the PRBs of a BWP.
type PrbBitmap struct {
	bs *bitset.BitSet
}

// NewPrbBitmap returns an all-zero bitmap of the given size.
func NewPrbBitmap(size uint32) PrbBitmap {
	return PrbBitmap{bs: bitset.New(uint(size))}
}

// Size returns the bitmap length in PRBs.
func (b PrbBitmap) Size() uint32 { return uint32(b.bs.Len()) }

// Set marks one PRB as occupied.
func (b PrbBitmap) Set(prb uint32) { b.bs.Set(uint(prb)) }

// Test reports whether a PRB is occupied.
func (b PrbBitmap) Test(prb uint32) bool { return b.bs.Test(uint(prb)) }

// Fill marks the interval [start, stop) as occupied.
func (b PrbBitmap) Fill(start, stop uint32) {
	for i := start; i < stop && i < b.Size(); i++ {
		b.bs.Set(uint(i))
	}
}

// FillInterval marks every PRB of the interval as occupied.
func (b PrbBitmap) FillInterval(iv PrbInterval) { b.Fill(iv.Start(), iv.Stop()) }

// Count returns the number of occupied PRBs.
func (b PrbBitmap) Count() uint32 { return uint32(b.bs.Count()) }

// Any reports whether any PRB is occupied.
func (b PrbBitmap) Any() bool { return b.bs.Any() }

// Or merges another bitmap into this one.
func (b PrbBitmap) Or(o PrbBitmap) { b.bs.InPlaceUnion(o.bs) }

// Intersects reports whether the two bitmaps share an occupied PRB.
func (b PrbBitmap) Intersects(o PrbBitmap) bool {
	return b.bs.IntersectionCardinality(o.bs) > 0
}

// IntersectsInterval reports whether any PRB of iv is occupied.
func (b PrbBitmap) IntersectsInterval(iv PrbInterval) bool {
	for i := iv.Start(); i < iv.Stop() && i < b.Size(); i++ {
		if b.bs.Test(uint(i)) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (b PrbBitmap) Clone() PrbBitmap { return PrbBitmap{bs: b.bs.Clone()} }

// Reset clears all bits.
func (b PrbBitmap) Reset() { b.bs.ClearAll() }

func (b PrbBitmap) String() string { return b.bs.DumpAsBits() }

// FindEmptyInterval searches the bitmap from startIdx for a run of clear
// bits of at least nofPrbs. It returns the first such run, truncated to
// nofPrbs, or the longest clear run found when none is long enough.
func (b PrbBitmap) FindEmptyInterval(nofPrbs, startIdx uint32) PrbInterval {
	var best, cur PrbInterval
	for i := startIdx; i < b.Size(); i++ {
		if b.Test(i) {
			if cur.Length() > best.Length() {
				best = cur
			}
			cur = PrbInterval{}
			continue
		}
		if cur.Empty() {
			cur = NewPrbInterval(i, i+1)
		} else {
			cur = NewPrbInterval(cur.Start(), i+1)
		}
		if cur.Length() >= nofPrbs {
			return NewPrbInterval(cur.Start(), cur.Start()+nofPrbs)
		}
	}
	if cur.Length() > best.Length() {
		best = cur
	}
	return best
}

// RbgBitmap is a bitmap over the resource block groups of a BWP.
type RbgBitmap struct {
	bs *bitset.BitSet
}

// NewRbgBitmap returns an all-zero RBG bitmap of the given size.
func NewRbgBitmap(size uint32) RbgBitmap {
	return RbgBitmap{bs: bitset.New(uint(size))}
}

// Size returns the bitmap length in RBGs.
func (b RbgBitmap) Size() uint32 { return uint32(b.bs.Len()) }

// Set marks one RBG.
func (b RbgBitmap) Set(rbg uint32) { b.bs.Set(uint(rbg)) }

// Test reports whether an RBG is set.
func (b RbgBitmap) Test(rbg uint32) bool { return b.bs.Test(uint(rbg)) }

// Count returns the number of set RBGs.
func (b RbgBitmap) Count() uint32 { return uint32(b.bs.Count()) }

// Or merges another bitmap into this one.
func (b RbgBitmap) Or(o RbgBitmap) { b.bs.InPlaceUnion(o.bs) }

// Intersects reports whether the two bitmaps share a set RBG.
func (b RbgBitmap) Intersects(o RbgBitmap) bool {
	return b.bs.IntersectionCardinality(o.bs) > 0
}

// Clone returns an independent copy.
func (b RbgBitmap) Clone() RbgBitmap { return RbgBitmap{bs: b.bs.Clone()} }

// Reset clears all bits.
func (b RbgBitmap) Reset() { b.bs.ClearAll() }

// ToUint64 packs the bitmap into a 64-bit word, RBG 0 at the MSB side of
// the N_rbg-wide field, as carried in the DCI frequency assignment.
func (b RbgBitmap) ToUint64() uint64 {
	var v uint64
	n := b.Size()
	for i := uint32(0); i < n && i < 64; i++ {
		if b.Test(i) {
			v |= 1 << (n - 1 - i)
		}
	}
	return v
}

// RbgSize returns the nominal RBG size P per TS 38.214, Table 5.1.2.2.1-1.
func RbgSize(bwpWidth uint32, cfg1 bool) uint32 {
	switch {
	case bwpWidth <= 36:
		if cfg1 {
			return 2
		}
		return 4
	case bwpWidth <= 72:
		if cfg1 {
			return 4
		}
		return 8
	case bwpWidth <= 144:
		if cfg1 {
			return 8
		}
		return 16
	default:
		return 16
	}
}

// NofRbgs returns the number of RBGs of a BWP per TS 38.214, 5.1.2.2.1.
func NofRbgs(bwpWidth, bwpStart uint32, cfg1 bool) uint32 {
	p := RbgSize(bwpWidth, cfg1)
	return (bwpWidth + bwpStart%p + p - 1) / p
}

// RbgInterval returns the BWP-relative PRB range covered by RBG i. The
// first and last RBG may be shorter than P when the BWP start is not
// P-aligned (TS 38.214, 5.1.2.2.1).
func RbgInterval(i, bwpStart, bwpWidth, p uint32) PrbInterval {
	off := bwpStart % p
	var lo uint32
	if i > 0 {
		lo = i*p - off
	}
	hi := (i+1)*p - off
	if hi > bwpWidth {
		hi = bwpWidth
	}
	return NewPrbInterval(lo, hi)
}
