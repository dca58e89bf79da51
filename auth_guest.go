package smb1d

import "context"

// GuestAuthenticator grants every SessionSetupAndX and TreeConnectAndX
// guest/read-write access without checking credentials (spec.md §6, used by
// deployments with no user database configured).
type GuestAuthenticator struct {
	extended bool
}

func NewGuestAuthenticator(extended bool) *GuestAuthenticator {
	return &GuestAuthenticator{extended: extended}
}

func (a *GuestAuthenticator) AccessMode() AccessMode { return AccessModeShare }

func (a *GuestAuthenticator) SecurityMode() byte { return 0x00 }

func (a *GuestAuthenticator) EncryptionKeyLength() int { return 0 }

func (a *GuestAuthenticator) AuthContext(session *Session) []byte { return nil }

func (a *GuestAuthenticator) HasExtendedSecurity() bool { return a.extended }

func (a *GuestAuthenticator) UsingSPNEGO() bool { return a.extended }

func (a *GuestAuthenticator) NegTokenInit() []byte {
	if !a.extended {
		return nil
	}
	ntlmOID := []byte{0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0x37, 0x02, 0x02, 0x0a}
	return asn1Wrap(0xa0, asn1Wrap(0x30, asn1Wrap(0xa0, asn1Wrap(0x30, asn1Wrap(0x06, ntlmOID)))))
}

func (a *GuestAuthenticator) AuthenticateUser(ctx context.Context, clientInfo UserCredentials, session *Session) (AuthResult, error) {
	return AuthResult{Authenticated: true, Guest: true}, nil
}

func (a *GuestAuthenticator) AuthenticateShareConnect(ctx context.Context, session *Session, share string, password string) (SharePermission, error) {
	return PermissionWritable, nil
}
