package smb1d

import (
	"crypto/md5"
	"encoding/binary"
)

// signingState tracks the per-session sequence counter used by SMB1 message
// signing (spec.md §4.3 "security signature", MS-CIFS 3.2.3). Unlike SMB2/3's
// AES-CMAC/HMAC-SHA256, SMB1 signs with MD5(session-key ∥ message) after
// temporarily stamping the signature field with the running sequence number;
// the surrounding plumbing (key storage on Session, sign-if-required policy
// in the dispatcher) follows the same shape as SMB2/3 signing, just with a
// simpler digest.
type signingState struct {
	key          []byte
	clientSeq    uint32
	serverSeq    uint32
}

func newSigningState(key []byte) *signingState {
	return &signingState{key: key}
}

// signOutgoing stamps message's signature field with the server's next
// sequence number and overwrites it with the computed MD5 digest, then
// advances the counter (spec.md §4.3, §5 "message signing" ordering: sign
// happens immediately before the bytes hit the wire).
func (s *signingState) signOutgoing(message []byte) {
	if s == nil || len(s.key) == 0 || len(message) < 4+14+8 {
		return
	}
	seq := s.serverSeq
	s.serverSeq += 2
	putSequence(message, seq)
	copy(message[4+14:4+22], computeSignature(s.key, message)[:8])
}

// verifyIncoming checks a request's signature against the expected client
// sequence number, then advances the counter regardless of outcome (a
// request is consumed from the sequence whether or not it verifies).
func (s *signingState) verifyIncoming(message []byte) bool {
	if s == nil || len(s.key) == 0 || len(message) < 4+14+8 {
		return true
	}
	seq := s.clientSeq
	s.clientSeq += 2

	var got [8]byte
	copy(got[:], message[4+14:4+22])

	scratch := make([]byte, len(message))
	copy(scratch, message)
	putSequence(scratch, seq)
	expected := computeSignature(s.key, scratch)

	for i := range got {
		if got[i] != expected[i] {
			return false
		}
	}
	return true
}

func putSequence(message []byte, seq uint32) {
	binary.LittleEndian.PutUint32(message[4+14:4+18], seq)
	binary.LittleEndian.PutUint32(message[4+18:4+22], 0)
}

func computeSignature(key, message []byte) []byte {
	h := md5.New()
	h.Write(key)
	h.Write(message)
	sum := h.Sum(nil)
	return sum[:8]
}
