package smb1d

import (
	"encoding/binary"
	"errors"
	"io"
)

// TransportKind distinguishes the two ways a session can arrive: NetBIOS
// session service (port 139, needs a session-request handshake) or
// direct SMB-over-TCP (port 445, no handshake, pure length framing).
type TransportKind int

const (
	TransportNetBIOS TransportKind = iota
	TransportDirectTCP
)

// NetBIOS framing message types (spec.md §4.2, §GLOSSARY).
const (
	nbSessionMessage        byte = 0x00
	nbSessionRequest        byte = 0x81
	nbPositiveResponse      byte = 0x82
	nbNegativeResponse      byte = 0x83
	nbRetargetResponse      byte = 0x84
	nbSessionKeepAlive      byte = 0x85
)

// maxDirectTCPLength is the largest 17-bit length a NetBIOS-style frame can
// encode (spec.md §8 "Boundary behaviors").
const maxDirectTCPLength = (0x01 << 16) | 0xFFFF

// Framer reads and writes length-prefixed SMB messages over one connection's
// byte stream (spec.md §4.2).
type Framer struct {
	kind TransportKind
	pool *PacketPool
	rw   io.ReadWriter
}

// NewFramer builds a framer bound to one connection's stream.
func NewFramer(kind TransportKind, pool *PacketPool, rw io.ReadWriter) *Framer {
	return &Framer{kind: kind, pool: pool, rw: rw}
}

// ReadPacket implements spec.md §4.2 "Reading": read the 4-byte frame
// header (tolerating short reads), compute the payload length, allocate a
// packet sized to hold it, and read the payload in.
func (f *Framer) ReadPacket() (*Packet, error) {
	var hdr [4]byte
	if err := readFull(f.rw, hdr[:]); err != nil {
		return nil, err
	}

	msgType := hdr[0]
	dataLen := int(hdr[2])<<8 | int(hdr[3])
	if f.kind == TransportDirectTCP {
		dataLen = int(binary.BigEndian.Uint32(hdr[:]))
	} else {
		dataLen |= int(hdr[1]) << 16
	}

	if dataLen > maxDirectTCPLength {
		return nil, ErrTooLarge
	}

	if f.kind == TransportNetBIOS && msgType != nbSessionMessage {
		return f.readNonDataMessage(msgType, dataLen)
	}

	pkt, err := f.pool.Allocate(dataLen + 4)
	if err != nil {
		return nil, err
	}
	pkt.buf[0] = msgType
	if err := readFull(f.rw, pkt.buf[4:4+dataLen]); err != nil {
		f.pool.Release(pkt)
		return nil, ErrConnectionClosed
	}
	pkt.SetLength(dataLen)
	return pkt, nil
}

// readNonDataMessage handles NetBIOS control frames (session request,
// keepalive) that carry no SMB payload: the frame's own payload is read into
// the packet and its message type is kept in buf[0], so acceptor.go can tell
// a session request or keepalive apart from an SMB message.
func (f *Framer) readNonDataMessage(msgType byte, length int) (*Packet, error) {
	pkt, err := f.pool.Allocate(length + 4)
	if err != nil {
		return nil, err
	}
	pkt.buf[0] = msgType
	if length > 0 {
		if err := readFull(f.rw, pkt.buf[4:4+length]); err != nil {
			f.pool.Release(pkt)
			return nil, ErrConnectionClosed
		}
	}
	pkt.SetLength(length)
	return pkt, nil
}

// WritePacket implements spec.md §4.2 "Writing": stamp the frame prefix for
// this transport, then write length+4 bytes.
func (f *Framer) WritePacket(pkt *Packet, length int) error {
	f.stampFrame(pkt, length)
	_, err := f.rw.Write(pkt.buf[:length+4])
	return err
}

func (f *Framer) stampFrame(pkt *Packet, length int) {
	if f.kind == TransportDirectTCP {
		binary.BigEndian.PutUint32(pkt.buf[0:4], uint32(length))
		return
	}
	pkt.buf[0] = nbSessionMessage
	pkt.buf[1] = byte((length >> 16) & 0x01)
	pkt.buf[2] = byte(length >> 8)
	pkt.buf[3] = byte(length)
}

// Flush exposes a separate flush operation (spec.md §4.2); flushAsync calls
// it after each async push. Only meaningful for buffered writers, but kept as a
// first-class step so a buffered transport can be swapped in later.
func (f *Framer) Flush() error {
	type flusher interface{ Flush() error }
	if fl, ok := f.rw.(flusher); ok {
		return fl.Flush()
	}
	return nil
}

// readFull loops until buf is completely filled or an error/EOF occurs,
// tolerating the short reads spec.md §4.2 and §8 call out explicitly.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrConnectionClosed
		}
		return err
	}
	return nil
}
