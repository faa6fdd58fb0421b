package tlsengine

import (
	"crypto"
	"hash"
)

// transcript is the append-only handshake byte log plus its running hash,
// per §3/§4.5. Before ServerHello fixes the PRF hash, candidate
// accumulators for every hash a policy might still negotiate are kept live;
// once the suite is chosen, all but the winner are dropped.
type transcript struct {
	raw        []byte
	candidates map[crypto.Hash]hash.Hash
	fixed      crypto.Hash
	isFixed    bool
}

func newTranscript(candidateHashes ...crypto.Hash) *transcript {
	t := &transcript{candidates: make(map[crypto.Hash]hash.Hash)}
	for _, h := range candidateHashes {
		t.candidates[h] = h.New()
	}
	return t
}

// append adds a raw handshake message body (no record-layer framing, no
// HelloVerifyRequest, no ChangeCipherSpec, per §4.5) to the transcript.
func (t *transcript) append(msg []byte) {
	t.raw = append(t.raw, msg...)
	if t.isFixed {
		t.candidates[t.fixed].Write(msg)
		return
	}
	for _, h := range t.candidates {
		h.Write(msg)
	}
}

// fix prunes every candidate accumulator except the one matching the
// negotiated PRF hash, once ServerHello selects a cipher suite.
func (t *transcript) fix(h crypto.Hash) {
	if t.isFixed {
		return
	}
	if _, ok := t.candidates[h]; !ok {
		// The negotiated hash wasn't pre-seeded (policy allowed a suite
		// whose PRF hash the transcript didn't anticipate); rebuild from
		// the raw log, which is always retained.
		acc := h.New()
		acc.Write(t.raw)
		t.candidates = map[crypto.Hash]hash.Hash{h: acc}
	} else {
		t.candidates = map[crypto.Hash]hash.Hash{h: t.candidates[h]}
	}
	t.fixed = h
	t.isFixed = true
}

// sum returns the current running hash under the fixed algorithm. Panics
// if called before fix — a programmer error, since no handshake message
// needs a transcript hash before ServerHello negotiates the suite.
func (t *transcript) sum() []byte {
	assert(t.isFixed)
	return t.candidates[t.fixed].Sum(nil)
}
