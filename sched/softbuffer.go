package sched

import (
	"sync"

	"github.com/rs/xid"
)

// TxSoftbuffer holds the encoder soft bits of one downlink transport
// block across its retransmissions. Handles are unique: a buffer is owned
// by exactly one HARQ process until released back to the pool.
type TxSoftbuffer struct {
	id     xid.ID
	nofPrb uint32
	pool   *SoftbufferPool
}

// ID returns the unique handle id, used for tracing.
func (b *TxSoftbuffer) ID() xid.ID { return b.id }

// NofPrb returns the PRB capacity the buffer was sized for.
func (b *TxSoftbuffer) NofPrb() uint32 { return b.nofPrb }

// Release returns the buffer to its pool. Safe to call once per handle.
func (b *TxSoftbuffer) Release() {
	if b.pool != nil {
		b.pool.putTx(b)
	}
}

// RxSoftbuffer holds the decoder soft bits of one uplink transport block.
type RxSoftbuffer struct {
	id     xid.ID
	nofPrb uint32
	pool   *SoftbufferPool
}

// ID returns the unique handle id.
func (b *RxSoftbuffer) ID() xid.ID { return b.id }

// NofPrb returns the PRB capacity the buffer was sized for.
func (b *RxSoftbuffer) NofPrb() uint32 { return b.nofPrb }

// Release returns the buffer to its pool.
func (b *RxSoftbuffer) Release() {
	if b.pool != nil {
		b.pool.putRx(b)
	}
}

// SoftbufferPool issues reusable TX/RX softbuffers sized by the cell
// carrier width. It is internally synchronized; handles may be released
// from any goroutine.
type SoftbufferPool struct {
	mu     sync.Mutex
	nofPrb uint32
	freeTx []*TxSoftbuffer
	freeRx []*RxSoftbuffer
}

// NewSoftbufferPool pre-allocates capacity buffers sized for nofPrb PRBs.
func NewSoftbufferPool(nofPrb uint32, capacity int) *SoftbufferPool {
	p := &SoftbufferPool{nofPrb: nofPrb}
	for i := 0; i < capacity; i++ {
		p.freeTx = append(p.freeTx, &TxSoftbuffer{id: xid.New(), nofPrb: nofPrb, pool: p})
		p.freeRx = append(p.freeRx, &RxSoftbuffer{id: xid.New(), nofPrb: nofPrb, pool: p})
	}
	return p
}

// GetTx issues a TX softbuffer able to carry nofPrb PRBs. The pool grows
// when exhausted.
func (p *SoftbufferPool) GetTx(nofPrb uint32) *TxSoftbuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.freeTx); n > 0 {
		b := p.freeTx[n-1]
		p.freeTx = p.freeTx[:n-1]
		return b
	}
	size := p.nofPrb
	if nofPrb > size {
		size = nofPrb
	}
	return &TxSoftbuffer{id: xid.New(), nofPrb: size, pool: p}
}

// GetRx issues an RX softbuffer able to carry nofPrb PRBs.
func (p *SoftbufferPool) GetRx(nofPrb uint32) *RxSoftbuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.freeRx); n > 0 {
		b := p.freeRx[n-1]
		p.freeRx = p.freeRx[:n-1]
		return b
	}
	size := p.nofPrb
	if nofPrb > size {
		size = nofPrb
	}
	return &RxSoftbuffer{id: xid.New(), nofPrb: size, pool: p}
}

func (p *SoftbufferPool) putTx(b *TxSoftbuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeTx = append(p.freeTx, b)
}

func (p *SoftbufferPool) putRx(b *RxSoftbuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeRx = append(p.freeRx, b)
}

// FreeTx returns the number of idle TX buffers. Used by tests.
func (p *SoftbufferPool) FreeTx() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeTx)
}

// FreeRx returns the number of idle RX buffers.
func (p *SoftbufferPool) FreeRx() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeRx)
}
