package tlsengine

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"sync"
)

// Record layer (C2): frames application-data, alert, handshake, and
// change-cipher-spec messages into records and back, per §4.2. Epoch and
// cipher-state bookkeeping covers AEAD, CBC MAC-then-encrypt and CBC
// Encrypt-then-MAC suites (Rekey rejects any other cipher mode, including
// stream ciphers) plus DTLS epoch concerns (anti-replay window, old-epoch
// retention).
const (
	sequenceNumberLen   = 8       // sequence number length
	recordHeaderLenTLS  = 5       // record header length (TLS)
	recordHeaderLenDTLS = 13      // record header length (DTLS)
	maxFragmentLen      = 1 << 14 // max number of plaintext bytes in a record
	maxCiphertextSlop   = 2048    // §4.2: payload length <= 2^14 + 2048
	labelForKey         = "key"
	labelForIV          = "iv"
	antiReplayWindowLen = 64 // §4.3: 64-entry anti-replay window per epoch
)

// RecordType is the content-type byte of a TLS/DTLS record.
type RecordType uint8

const (
	RecordTypeChangeCipherSpec RecordType = 20
	RecordTypeAlert            RecordType = 21
	RecordTypeHandshake        RecordType = 22
	RecordTypeApplicationData  RecordType = 23
	RecordTypeAck              RecordType = 25 // accepted for forward compatibility, unused by the state machine
)

// TLSPlaintext is the decoded record body together with the metadata (type,
// epoch, sequence) needed to reconstruct its AAD, per §4.2.
//
//	struct {
//	    ContentType type;
//	    ProtocolVersion record_version;
//	    uint16 length;
//	    opaque fragment[TLSPlaintext.length];
//	} TLSPlaintext;
type TLSPlaintext struct {
	contentType RecordType
	epoch       Epoch
	seq         uint64
	fragment    []byte
}

func NewTLSPlaintext(ct RecordType, epoch Epoch, fragment []byte) *TLSPlaintext {
	return &TLSPlaintext{contentType: ct, epoch: epoch, fragment: fragment}
}

func (t TLSPlaintext) ContentType() RecordType { return t.contentType }
func (t TLSPlaintext) Fragment() []byte        { return t.fragment }
func (t TLSPlaintext) Seq() uint64             { return t.seq }

// Direction distinguishes the read and write halves of a record layer,
// since CBC suites use different MAC/cipher keys per direction.
type Direction uint8

const (
	DirectionWrite = Direction(1)
	DirectionRead  = Direction(2)
)

// cipherState is one epoch's worth of keying material bound to its cipher
// construction, plus the 64-bit sequence counter §3 requires reset per
// epoch.
type cipherState struct {
	epoch    Epoch
	ivLength int
	seq      uint64
	iv       []byte
	cipher   cipher.AEAD // non-nil for AEAD suites and the Encrypt-then-MAC adapter

	// explicitNonceLen is nonzero for RFC 5288/6655-style GCM/CCM suites,
	// which carry a per-record explicit nonce on the wire in addition to
	// the fixed IV; zero for ChaCha20-Poly1305 (RFC 7905) and the
	// Encrypt-then-MAC adapter, which derive the whole nonce from the
	// fixed IV and the sequence number.
	explicitNonceLen int

	cbc *cbcState // non-nil only for CBC MAC-then-encrypt suites

	window replayWindow // DTLS only; zero value is fine for TLS
}

func newCipherStateNull() *cipherState {
	return &cipherState{epoch: EpochClear}
}

func newCipherStateAEAD(epoch Epoch, factory AEADFactory, key, iv []byte, explicitNonceLen int) (*cipherState, error) {
	c, err := factory(key)
	if err != nil {
		return nil, err
	}
	return &cipherState{epoch: epoch, ivLength: len(iv), iv: iv, cipher: c, explicitNonceLen: explicitNonceLen}, nil
}

func newCipherStateCBC(epoch Epoch, cs *cbcState) *cipherState {
	return &cipherState{epoch: epoch, cbc: cs}
}

func (c *cipherState) combineSeq(datagram bool) uint64 {
	seq := c.seq
	if datagram {
		seq |= uint64(c.epoch) << 48
	}
	return seq
}

// computeNonce builds the AEAD nonce for seq. GCM/CCM (RFC 5288, RFC 6655)
// carry an explicit per-record nonce: the fixed IV (the "salt") concatenated
// with the sequence number, sent in the clear alongside the ciphertext.
// ChaCha20-Poly1305 (RFC 7905) instead XORs the sequence number into the
// low-order bytes of a fixed IV derived entirely from the key block, with
// nothing extra on the wire.
func (c *cipherState) computeNonce(seq uint64) []byte {
	if c.explicitNonceLen > 0 {
		nonce := make([]byte, len(c.iv)+c.explicitNonceLen)
		copy(nonce, c.iv)
		encodeUint(seq, c.explicitNonceLen, nonce[len(c.iv):])
		return nonce
	}
	nonce := make([]byte, len(c.iv))
	copy(nonce, c.iv)
	s := seq
	offset := len(c.iv)
	for i := 0; i < 8; i++ {
		nonce[(offset-i)-1] ^= byte(s & 0xff)
		s >>= 8
	}
	return nonce
}

func (c *cipherState) incrementSequenceNumber() {
	if c.seq >= (1<<48 - 1) {
		panic("tlsengine: sequence number wraparound")
	}
	c.seq++
}

func (c *cipherState) overhead() int {
	if c.cipher != nil {
		return c.explicitNonceLen + c.cipher.Overhead()
	}
	return 0
}

func (c *cipherState) isEncrypted() bool {
	return c.cipher != nil || c.cbc != nil
}

// zero scrubs key material on epoch supersession, handshake completion of a
// prior epoch, or endpoint destruction, per §5.
func (c *cipherState) zero() {
	for i := range c.iv {
		c.iv[i] = 0
	}
	if c.cbc != nil {
		c.cbc.zero()
	}
}

// replayWindow is the 64-entry sliding anti-replay window §4.3 requires per
// DTLS epoch. top is the highest sequence number accepted so far; bits
// tracks the 64 sequence numbers at top, top-1, ..., top-63.
type replayWindow struct {
	top  uint64
	bits uint64
	init bool
}

// accept reports whether seq is new (not a duplicate, not too far behind
// the window) and, if so, marks it seen.
func (w *replayWindow) accept(seq uint64) bool {
	if !w.init {
		w.init = true
		w.top = seq
		w.bits = 1
		return true
	}
	if seq > w.top {
		shift := seq - w.top
		if shift >= antiReplayWindowLen {
			w.bits = 0
		} else {
			w.bits <<= shift
		}
		w.bits |= 1
		w.top = seq
		return true
	}
	diff := w.top - seq
	if diff >= antiReplayWindowLen {
		return false // too old
	}
	mask := uint64(1) << diff
	if w.bits&mask != 0 {
		return false // duplicate
	}
	w.bits |= mask
	return true
}

// RecordLayerFactory builds RecordLayer values. A RecordLayer is the I/O-free
// analogue of a connection: the record layer never performs socket I/O (§1). Inbound bytes arrive via PushInbound
// (fed by the endpoint façade's received_data); outbound bytes accumulate
// in DrainOutbound for the façade to hand to emit_data.
type RecordLayerFactory interface {
	NewLayer(dir Direction, datagram bool) RecordLayer
}

type RecordLayer interface {
	Lock()
	Unlock()
	SetVersion(v ProtocolVersion)
	Rekey(epoch Epoch, suite CipherSuiteParams, keys *KeySet, etm bool) error
	ResetClear(seq uint64)
	DiscardReadKey(epoch Epoch)
	PushInbound(data []byte)
	ReadRecord() (*TLSPlaintext, error)
	WriteRecord(pt *TLSPlaintext) error
	DrainOutbound() []byte
	Epoch() Epoch
	NeededHint() int
}

// DefaultRecordLayer is the concrete RecordLayer used by both TLS and DTLS
// endpoints; r.datagram selects the header shape and epoch/anti-replay
// behavior.
type DefaultRecordLayer struct {
	sync.Mutex
	label     string
	direction Direction
	version   ProtocolVersion
	frame     *frameReader

	cachedRecord *TLSPlaintext
	cachedError  error

	cipher      *cipherState
	readCiphers map[Epoch]*cipherState

	datagram bool
	inbound  [][]byte // chunks pushed by PushInbound, consumed FIFO
	outbound []byte   // bytes pending drain via DrainOutbound
}

func NewRecordLayerTLS(dir Direction) *DefaultRecordLayer {
	r := &DefaultRecordLayer{direction: dir}
	r.frame = newFrameReader(recordLayerFrameDetails{false})
	r.cipher = newCipherStateNull()
	r.version = VersionTLS10
	return r
}

func NewRecordLayerDTLS(dir Direction) *DefaultRecordLayer {
	r := &DefaultRecordLayer{direction: dir}
	r.frame = newFrameReader(recordLayerFrameDetails{true})
	r.cipher = newCipherStateNull()
	r.readCiphers = map[Epoch]*cipherState{0: r.cipher}
	r.datagram = true
	r.version = VersionDTLS12
	return r
}

func (r *DefaultRecordLayer) SetVersion(v ProtocolVersion) { r.version = v }
func (r *DefaultRecordLayer) Epoch() Epoch                 { return r.cipher.epoch }

func (r *DefaultRecordLayer) ResetClear(seq uint64) {
	r.cipher = newCipherStateNull()
	r.cipher.seq = seq
}

// Rekey installs the keys for epoch N+1, derived earlier by the key
// schedule (C6). etm selects Encrypt-then-MAC framing for CBC suites.
func (r *DefaultRecordLayer) Rekey(epoch Epoch, suite CipherSuiteParams, keys *KeySet, etm bool) error {
	var cs *cipherState
	var err error
	switch {
	case suite.IsAEAD():
		cs, err = newCipherStateAEAD(epoch, suite.AEAD, keys.Keys[labelForKey], keys.Keys[labelForIV], explicitNonceLenFor(suite))
	case suite.Cipher == CipherBlockCBC && etm:
		factory, ferr := etmAEADFactory(suite)
		if ferr != nil {
			return ferr
		}
		material := append(append([]byte{}, keys.Keys[labelForKey]...), keys.Keys[labelForMAC]...)
		cs, err = newCipherStateAEAD(epoch, factory, material, keys.Keys[labelForIV], 0)
	case suite.Cipher == CipherBlockCBC:
		cs = newCipherStateCBC(epoch, newCBCState(suite, keys.Keys[labelForKey], keys.Keys[labelForMAC], keys.Keys[labelForIV]))
	default:
		return InternalError(fmt.Sprintf("tlsengine.recordlayer: unsupported cipher mode for suite %s", suite.Name))
	}
	if err != nil {
		return err
	}
	r.cipher = cs
	if r.datagram && r.direction == DirectionRead {
		r.readCiphers[epoch] = cs
	}
	return nil
}

// explicitNonceLenFor reports the per-record explicit-nonce width RFC 5288
// (GCM) and RFC 6655 (CCM) require on the wire; ChaCha20-Poly1305 (RFC 7905)
// derives its nonce entirely from the key block and the sequence number
// instead, so it returns 0.
func explicitNonceLenFor(suite CipherSuiteParams) int {
	switch suite.Cipher {
	case CipherAEADGCM, CipherAEADCCM:
		return sequenceNumberLen
	default:
		return 0
	}
}

// DiscardReadKey releases a DTLS read epoch's keys once reordering no
// longer needs them (§3: "read epoch N-1 is retained briefly").
func (r *DefaultRecordLayer) DiscardReadKey(epoch Epoch) {
	if !r.datagram {
		return
	}
	if cs, ok := r.readCiphers[epoch]; ok {
		cs.zero()
		delete(r.readCiphers, epoch)
	}
}

// PushInbound feeds previously-received bytes into the frame assembler;
// called by the endpoint façade's received_data (C10).
func (r *DefaultRecordLayer) PushInbound(data []byte) {
	r.inbound = append(r.inbound, data)
}

// NeededHint reports how many more bytes the frame assembler needs before
// it can deliver another record, satisfying received_data's hint contract.
func (r *DefaultRecordLayer) NeededHint() int {
	return r.frame.needed()
}

type recordLayerFrameDetails struct {
	datagram bool
}

func (d recordLayerFrameDetails) headerLen() int {
	if d.datagram {
		return recordHeaderLenDTLS
	}
	return recordHeaderLenTLS
}

// aeadAdditionalData builds the AEAD associated data. TLS (RFC 5246
// §6.2.3.3, RFC 5288 §3) prepends the 8-byte sequence number ahead of the
// record header; DTLS's 13-byte header already carries epoch||sequence in
// place of a bare sequence number (RFC 6347 §4.1.2.1), so it is used as-is.
func aeadAdditionalData(datagram bool, seq uint64, header []byte) []byte {
	if datagram {
		return header
	}
	aad := make([]byte, sequenceNumberLen+len(header))
	encodeUint(seq, sequenceNumberLen, aad)
	copy(aad[sequenceNumberLen:], header)
	return aad
}

// encrypt implements §4.2's AEAD framing path: true AEAD ciphers and the
// Encrypt-then-MAC adapter are indistinguishable here, since both satisfy
// cipher.AEAD; CBC MAC-then-encrypt is delegated to cbcState. GCM/CCM
// suites prepend their explicit nonce (here, the sequence number) to the
// sealed output per RFC 5288.
func (r *DefaultRecordLayer) encrypt(cipherSt *cipherState, seq uint64, header []byte, pt *TLSPlaintext) ([]byte, error) {
	assert(r.direction == DirectionWrite)
	if cipherSt.cipher != nil {
		aad := aeadAdditionalData(r.datagram, seq, header)
		nonce := cipherSt.computeNonce(seq)
		originalLen := len(pt.fragment)
		sealedLen := originalLen + cipherSt.cipher.Overhead()
		out := make([]byte, cipherSt.explicitNonceLen, cipherSt.explicitNonceLen+sealedLen)
		if cipherSt.explicitNonceLen > 0 {
			copy(out, nonce[len(nonce)-cipherSt.explicitNonceLen:])
		}
		ciphertext := make([]byte, originalLen, sealedLen)
		copy(ciphertext, pt.fragment)
		out = cipherSt.cipher.Seal(out, nonce, ciphertext, aad)
		return out, nil
	}
	return cipherSt.cbc.encrypt(seq, header, pt.contentType, pt.fragment)
}

// decrypt is the inverse of encrypt. cbcState.decrypt is constant-time in
// padding validity (invariant 7); this path always runs it to completion
// rather than short-circuiting on an early padding failure.
func (r *DefaultRecordLayer) decrypt(cipherSt *cipherState, seq uint64, header []byte, pt *TLSPlaintext) (*TLSPlaintext, error) {
	assert(r.direction == DirectionRead)
	if cipherSt.cipher != nil {
		if len(pt.fragment) < cipherSt.overhead() {
			return nil, BadRecordMacError(fmt.Sprintf("tlsengine.recordlayer: record too short [%d] < [%d]", len(pt.fragment), cipherSt.overhead()))
		}
		aad := aeadAdditionalData(r.datagram, seq, header)
		sealed := pt.fragment
		nonce := cipherSt.computeNonce(seq)
		if cipherSt.explicitNonceLen > 0 {
			explicit := pt.fragment[:cipherSt.explicitNonceLen]
			copy(nonce[len(nonce)-cipherSt.explicitNonceLen:], explicit)
			sealed = pt.fragment[cipherSt.explicitNonceLen:]
		}
		plain, err := cipherSt.cipher.Open(nil, nonce, sealed, aad)
		if err != nil {
			return nil, BadRecordMacError("tlsengine.recordlayer: AEAD decrypt failed")
		}
		return &TLSPlaintext{contentType: pt.contentType, fragment: plain, seq: seq}, nil
	}
	fragment, err := cipherSt.cbc.decrypt(seq, header, pt.contentType, pt.fragment)
	if err != nil {
		return nil, err
	}
	return &TLSPlaintext{contentType: pt.contentType, fragment: fragment, seq: seq}, nil
}

func (r *DefaultRecordLayer) ReadRecord() (*TLSPlaintext, error) {
	pt, err := r.nextRecord(false)
	r.cachedRecord = nil
	r.cachedError = nil
	return pt, err
}

func (r *DefaultRecordLayer) ReadRecordAnyEpoch() (*TLSPlaintext, error) {
	pt, err := r.nextRecord(true)
	r.cachedRecord = nil
	r.cachedError = nil
	return pt, err
}

// AlertWouldBlock is returned (not raised as an Alert) when the frame
// assembler needs more bytes than have been pushed so far; it signals
// "come back after the next received_data call", not a protocol failure.
var AlertWouldBlock = fmt.Errorf("tlsengine.recordlayer: would block")

func (r *DefaultRecordLayer) nextRecord(allowOldEpoch bool) (*TLSPlaintext, error) {
	if r.cachedRecord != nil {
		return r.cachedRecord, r.cachedError
	}

	var header, body []byte
	err := error(AlertWouldBlock)
	for err != nil {
		if r.frame.needed() > 0 {
			if len(r.inbound) == 0 {
				return nil, AlertWouldBlock
			}
			chunk := r.inbound[0]
			r.inbound = r.inbound[1:]
			r.frame.addChunk(chunk)
		}
		header, body, err = r.frame.process()
		if err != nil && err != AlertWouldBlock {
			return nil, err
		}
	}

	pt := &TLSPlaintext{}
	switch RecordType(header[0]) {
	case RecordTypeAlert, RecordTypeHandshake, RecordTypeApplicationData, RecordTypeChangeCipherSpec, RecordTypeAck:
		pt.contentType = RecordType(header[0])
	default:
		return nil, newDecodeError("tlsengine.recordlayer: unknown content type %02x", header[0])
	}

	size := (int(header[len(header)-2]) << 8) + int(header[len(header)-1])
	if size > maxFragmentLen+maxCiphertextSlop {
		return nil, newDecodeError("tlsengine.recordlayer: ciphertext size too big (%d)", size)
	}

	pt.fragment = make([]byte, size)
	copy(pt.fragment, body)

	cipherSt := r.cipher
	seq := cipherSt.seq
	if r.datagram {
		seq, _ = decodeUint(header[3:11], 8)
		epoch := Epoch(seq >> 48)

		c, ok := r.readCiphers[epoch]
		if !ok {
			return nil, AlertWouldBlock // unknown epoch: the record is dropped
		}
		if epoch != cipherSt.epoch {
			if !allowOldEpoch {
				return nil, AlertWouldBlock
			}
			cipherSt = c
		}
		if !cipherSt.window.accept(seq & (1<<48 - 1)) {
			return nil, AlertWouldBlock // duplicate, silently dropped per §4.3
		}
	}

	if cipherSt.isEncrypted() {
		decrypted, err := r.decrypt(cipherSt, seq, header, pt)
		if err != nil {
			return nil, err
		}
		pt = decrypted
	}
	pt.epoch = cipherSt.epoch
	pt.seq = seq

	if len(pt.fragment) > maxFragmentLen {
		return nil, newDecodeError("tlsengine.recordlayer: plaintext size too big (%d)", len(pt.fragment))
	}
	if len(pt.fragment) == 0 && pt.contentType != RecordTypeApplicationData {
		return nil, newDecodeError("tlsengine.recordlayer: zero-length %d record", pt.contentType)
	}

	cipherSt.incrementSequenceNumber()
	r.cachedRecord = pt
	return pt, nil
}

func (r *DefaultRecordLayer) WriteRecord(pt *TLSPlaintext) error {
	if len(pt.fragment) == 0 && pt.contentType != RecordTypeApplicationData {
		return InternalError("tlsengine.recordlayer: attempted to write zero-length non-application record")
	}

	cipherSt := r.cipher
	seq := cipherSt.combineSeq(r.datagram)
	contentType := pt.contentType

	var ciphertext []byte
	var err error
	if cipherSt.isEncrypted() {
		// Unlike TLS 1.3, the legacy record header's content type is sent
		// in the clear and is part of the MAC/AAD input, so the header
		// passed to encrypt carries the real type and the plaintext (not
		// ciphertext) length; encrypt/decrypt prepend the sequence number
		// themselves to form the actual AAD (§6.2.3.3, RFC 5288 §3).
		plaintextHeader := r.buildHeader(contentType, seq, len(pt.fragment))
		ciphertext, err = r.encrypt(cipherSt, seq, plaintextHeader, pt)
		if err != nil {
			return err
		}
	} else {
		ciphertext = pt.fragment
	}

	if len(ciphertext) > maxFragmentLen+maxCiphertextSlop {
		return InternalError("tlsengine.recordlayer: record size too big")
	}
	header := r.buildHeader(contentType, seq, len(ciphertext))
	record := append(append([]byte{}, header...), ciphertext...)
	cipherSt.incrementSequenceNumber()
	r.outbound = append(r.outbound, record...)
	return nil
}

func (r *DefaultRecordLayer) buildHeader(contentType RecordType, seq uint64, length int) []byte {
	if !r.datagram {
		v := r.version.wire()
		return []byte{byte(contentType), byte(v >> 8), byte(v), byte(length >> 8), byte(length)}
	}
	header := make([]byte, recordHeaderLenDTLS)
	version := dtlsConvertVersion(r.version)
	header[0] = byte(contentType)
	header[1] = byte(version >> 8)
	header[2] = byte(version)
	encodeUint(seq, 8, header[3:])
	encodeUint(uint64(length), 2, header[11:])
	return header
}

// DrainOutbound returns and clears the bytes emitted since the last call,
// for the endpoint façade to pass to emit_data.
func (r *DefaultRecordLayer) DrainOutbound() []byte {
	out := r.outbound
	r.outbound = nil
	return out
}

// hmacEqual is the constant-time comparison helper cbc.go uses, keeping
// the "no secret-dependent branch" requirement (invariant 7) grep-able.
func hmacEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
