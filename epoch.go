package tlsengine

import "fmt"

// Epoch numbers a generation of record-layer keys, per §3. Epoch 0 is
// always plaintext.
type Epoch uint16

const EpochClear Epoch = 0

func (e Epoch) label() string {
	return fmt.Sprintf("epoch=%d", uint16(e))
}

// KeySet holds one direction's worth of derived key material for a single
// epoch, keyed by label ("key", "iv", "mac") so record layers for both AEAD
// and CBC/MAC suites can pull out exactly the material they need.
type KeySet struct {
	Keys map[string][]byte
}

const (
	labelForMAC = "mac"
)

// Zero overwrites every byte slice in the key set, per §5's requirement
// that secret material be scrubbed when superseded or on close.
func (k *KeySet) Zero() {
	if k == nil {
		return
	}
	for _, v := range k.Keys {
		for i := range v {
			v[i] = 0
		}
	}
}
