package smb1d

import (
	"context"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"strings"
	"sync"

	"golang.org/x/crypto/md4"
)

// NTLMAuthenticator implements challenge/response authentication for SMB1's
// SessionSetupAndX (spec.md §4.4 "asks the authenticator for challenge
// material", §6 "Authenticator"). Unlike a client-side NTLM initiator, this
// side generates the 8-byte (or extended-security SPNEGO) challenge and
// verifies the response the client computed against it.
type NTLMAuthenticator struct {
	domain     string
	users      map[string]string // uppercased username -> password
	allowGuest bool
	extended   bool

	mu         sync.Mutex
	challenges map[*Session][]byte
}

// NewNTLMAuthenticator builds an Authenticator backed by a fixed user table.
// Usernames are matched case-insensitively. extended selects whether
// extended security (SPNEGO-wrapped NTLMSSP) is offered at negotiate time.
func NewNTLMAuthenticator(domain string, users map[string]string, allowGuest, extended bool) *NTLMAuthenticator {
	normalized := make(map[string]string, len(users))
	for u, p := range users {
		normalized[strings.ToUpper(u)] = p
	}
	return &NTLMAuthenticator{
		domain:     domain,
		users:      normalized,
		allowGuest: allowGuest,
		extended:   extended,
		challenges: make(map[*Session][]byte),
	}
}

func (a *NTLMAuthenticator) AccessMode() AccessMode { return AccessModeUser }

// SecurityMode is the legacy security-mode byte: bit 0 set means challenge
// response is in use (always, for this authenticator); bit 1 tracks whether
// message signing is enabled, which the dispatcher ORs in separately.
func (a *NTLMAuthenticator) SecurityMode() byte { return 0x01 }

func (a *NTLMAuthenticator) EncryptionKeyLength() int {
	if a.extended {
		return 0
	}
	return 8
}

// AuthContext generates and remembers an 8-byte challenge for session,
// returned verbatim in the Negotiate response's byte area (spec.md §4.3
// "8-byte challenge + domain + server names").
func (a *NTLMAuthenticator) AuthContext(session *Session) []byte {
	challenge := make([]byte, 8)
	_, _ = rand.Read(challenge)
	a.mu.Lock()
	a.challenges[session] = challenge
	a.mu.Unlock()
	return challenge
}

func (a *NTLMAuthenticator) HasExtendedSecurity() bool { return a.extended }

func (a *NTLMAuthenticator) UsingSPNEGO() bool { return a.extended }

// NegTokenInit offers NTLMSSP as the sole mechanism (spec.md §4.3 "16-byte
// server GUID + SPNEGO NegTokenInit").
func (a *NTLMAuthenticator) NegTokenInit() []byte {
	ntlmOID := []byte{0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0x37, 0x02, 0x02, 0x0a}
	mechTypes := asn1Wrap(0x30, asn1Wrap(0x06, ntlmOID))
	mechTypeList := asn1Wrap(0xa0, mechTypes)
	negTokenInit := asn1Wrap(0x30, mechTypeList)
	return asn1Wrap(0xa0, negTokenInit)
}

// AuthenticateUser verifies the LM/NTLM(v2) response bytes decoded from the
// request against the challenge generated for this session (spec.md §6
// "AuthenticateUser").
func (a *NTLMAuthenticator) AuthenticateUser(ctx context.Context, clientInfo UserCredentials, session *Session) (AuthResult, error) {
	a.mu.Lock()
	challenge := a.challenges[session]
	delete(a.challenges, session)
	a.mu.Unlock()

	name := strings.TrimSpace(clientInfo.AccountName)
	if name == "" || strings.EqualFold(name, "guest") || strings.EqualFold(name, "anonymous") {
		if a.allowGuest {
			return AuthResult{Authenticated: true, Guest: true}, nil
		}
		return AuthResult{Denied: true}, nil
	}

	password, ok := a.users[strings.ToUpper(name)]
	if !ok {
		if a.allowGuest {
			return AuthResult{Authenticated: true, Guest: true}, nil
		}
		return AuthResult{Denied: true}, nil
	}

	if len(challenge) == 0 {
		return AuthResult{Denied: true}, nil
	}

	if verifyNTLMv2Response(clientInfo.CaseSensitivePassword, challenge, name, password, clientInfo.PrimaryDomain) {
		return AuthResult{Authenticated: true}, nil
	}
	if !a.extended && verifyNTLMv1Response(clientInfo.CaseSensitivePassword, challenge, password) {
		return AuthResult{Authenticated: true}, nil
	}

	if a.allowGuest {
		return AuthResult{Authenticated: true, Guest: true}, nil
	}
	return AuthResult{Denied: true}, nil
}

// AuthenticateShareConnect grants writable access to every tree connect.
// It checks neither whether the session is a guest nor the share password;
// access is decided at SessionSetupAndX time (user-level security).
func (a *NTLMAuthenticator) AuthenticateShareConnect(ctx context.Context, session *Session, share string, password string) (SharePermission, error) {
	return PermissionWritable, nil
}

// ntHash computes the NT one-way function: MD4 of the UTF-16LE password.
func ntHash(password string) []byte {
	h := md4.New()
	h.Write(EncodeStringToUTF16LE(password))
	return h.Sum(nil)
}

// ntv2Hash computes NTOWFv2: HMAC-MD5(NTHash, upper(username)+domain).
func ntv2Hash(username, password, domain string) []byte {
	h := hmac.New(md5.New, ntHash(password))
	h.Write(EncodeStringToUTF16LE(strings.ToUpper(username) + domain))
	return h.Sum(nil)
}

// verifyNTLMv2Response checks an NTLMv2 ClientResponse: the first 16 bytes
// are NTProofStr = HMAC-MD5(NTOWFv2, challenge||clientBlob); everything
// after is the blob the proof was computed over.
func verifyNTLMv2Response(response, challenge []byte, username, password, domain string) bool {
	if len(response) < 16 {
		return false
	}
	proof, blob := response[:16], response[16:]
	key := ntv2Hash(username, password, domain)
	h := hmac.New(md5.New, key)
	h.Write(challenge)
	h.Write(blob)
	return hmac.Equal(proof, h.Sum(nil))
}

// verifyNTLMv1Response checks the legacy 24-byte DES(NTHash, challenge)
// response using the 3-DES expansion MS-NLMP §3.3.1 describes; accepted
// only for dialects that never negotiated extended security.
func verifyNTLMv1Response(response, challenge []byte, password string) bool {
	if len(response) != 24 {
		return false
	}
	expected := desLongResponse(ntHash(password), challenge)
	return hmac.Equal(response, expected)
}

// desLongResponse implements the legacy NTLMv1 response function: the
// 16-byte NT hash is zero-padded to 21 bytes and split into three DES keys,
// each used to encrypt the 8-byte challenge (MS-NLMP §3.3.1 "DESL"). No
// third-party library in the corpus provides this legacy single-DES
// primitive (golang.org/x/crypto has no classic DES/NTLMv1 helper), so this
// one function falls back to the standard library's crypto/des.
func desLongResponse(ntHash, challenge []byte) []byte {
	padded := make([]byte, 21)
	copy(padded, ntHash)

	out := make([]byte, 24)
	for i := 0; i < 3; i++ {
		key := desKeyFrom7Bytes(padded[i*7 : i*7+7])
		block, err := des.NewCipher(key)
		if err != nil {
			return nil
		}
		block.Encrypt(out[i*8:i*8+8], challenge)
	}
	return out
}

// desKeyFrom7Bytes expands a 7-byte key into 8 bytes by inserting an odd
// parity bit every 7 bits, as classic LM/NTLM responses require.
func desKeyFrom7Bytes(seven []byte) []byte {
	key := make([]byte, 8)
	key[0] = seven[0] & 0xFE
	key[1] = (seven[0]<<7 | seven[1]>>1) & 0xFE
	key[2] = (seven[1]<<6 | seven[2]>>2) & 0xFE
	key[3] = (seven[2]<<5 | seven[3]>>3) & 0xFE
	key[4] = (seven[3]<<4 | seven[4]>>4) & 0xFE
	key[5] = (seven[4]<<3 | seven[5]>>5) & 0xFE
	key[6] = (seven[5]<<2 | seven[6]>>6) & 0xFE
	key[7] = seven[6] << 1
	for i := range key {
		key[i] = setOddParity(key[i])
	}
	return key
}

func setOddParity(b byte) byte {
	parity := byte(0)
	for i := 1; i < 8; i++ {
		parity ^= (b >> i) & 1
	}
	return (b & 0xFE) | (1 - parity)
}

// asn1Wrap produces a minimal BER TLV: tag byte, DER-style length, payload.
// Shared by the NegTokenInit construction here and in auth_guest.go.
func asn1Wrap(tag byte, data []byte) []byte {
	n := len(data)
	switch {
	case n < 128:
		out := make([]byte, 2+n)
		out[0], out[1] = tag, byte(n)
		copy(out[2:], data)
		return out
	case n < 256:
		out := make([]byte, 3+n)
		out[0], out[1], out[2] = tag, 0x81, byte(n)
		copy(out[3:], data)
		return out
	default:
		out := make([]byte, 4+n)
		out[0], out[1] = tag, 0x82
		out[2], out[3] = byte(n>>8), byte(n)
		copy(out[4:], data)
		return out
	}
}
