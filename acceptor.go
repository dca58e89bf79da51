package smb1d

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// acceptLoop runs for the lifetime of one listener, handing each accepted
// connection to its own goroutine (spec.md §4.4 "Listen"/"Accept").
func (s *Server) acceptLoop(ln net.Listener, kind TransportKind) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go s.serveConn(conn, kind)
	}
}

// serveConn drives one connection's lifecycle end to end: optional NetBIOS
// handshake, then the read/submit loop until the peer disconnects or the
// server shuts down (spec.md §4.4's session state machine).
func (s *Server) serveConn(conn net.Conn, kind TransportKind) {
	defer s.wg.Done()
	defer conn.Close()

	if s.options.SocketKeepAlive {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
		}
	}

	framer := NewFramer(kind, s.pool, conn)
	sess := NewSession(kind, conn.RemoteAddr(), framer, s.pool, s.options.MaxVirtualCircuitsPerSession)
	s.trackSession(sess)
	defer func() {
		sess.Hangup(s.notify)
		s.untrackSession(sess)
	}()

	log := s.log.WithField("remote", conn.RemoteAddr().String())

	if kind == TransportNetBIOS {
		if !s.handleNetBIOSHandshake(conn, framer, sess, log) {
			return
		}
	}

	s.readLoop(conn, framer, sess, log)
}

// handleNetBIOSHandshake implements spec.md §4.4's session-request step:
// read one control frame, validate the called name, and answer with a
// positive or negative response. Returns false if the handshake failed or
// the session should be torn down.
func (s *Server) handleNetBIOSHandshake(conn net.Conn, framer *Framer, sess *Session, log *logrus.Entry) bool {
	conn.SetReadDeadline(time.Now().Add(s.options.SocketTimeout))
	pkt, err := framer.ReadPacket()
	if err != nil {
		log.WithError(err).Debug("netbios handshake read failed")
		return false
	}
	defer s.pool.Release(pkt)

	if pkt.buf[0] != nbSessionRequest {
		s.writeNegativeResponse(conn, framer, pkt)
		return false
	}

	called, calling, ok := sessionRequestNames(pkt.Body()[:pkt.Length()])
	if !ok || !calledNameMatches(called, s.options.ServerName, s.options.AliasNames) {
		if s.options.StrictNetBIOSName {
			s.writeNegativeResponse(conn, framer, pkt)
			return false
		}
	}
	sess.CalledName = called
	sess.CallingName = calling

	resp, err := s.pool.Allocate(4)
	if err != nil {
		return false
	}
	defer s.pool.Release(resp)
	resp.buf[0], resp.buf[1], resp.buf[2], resp.buf[3] = nbPositiveResponse, 0, 0, 0
	if _, err := conn.Write(resp.buf[:4]); err != nil {
		log.WithError(err).Debug("netbios handshake write failed")
		return false
	}

	sess.SetState(StateSMBNegotiate)
	return true
}

func (s *Server) writeNegativeResponse(conn net.Conn, framer *Framer, req *Packet) {
	resp, err := s.pool.Allocate(5)
	if err != nil {
		return
	}
	defer s.pool.Release(resp)
	resp.buf[0], resp.buf[1], resp.buf[2], resp.buf[3] = nbNegativeResponse, 0, 0, 1
	resp.buf[4] = 0x8A // not listening under called name
	_, _ = conn.Write(resp.buf[:5])
}

// readLoop implements spec.md §4.8's per-connection read/dispatch cycle,
// including the "max packets per run" yielding rule: after that many
// packets are pulled off the wire back to back, the loop re-enters
// select so a starved listener goroutine elsewhere gets a turn.
func (s *Server) readLoop(conn net.Conn, framer *Framer, sess *Session, log *logrus.Entry) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		ran := 0
		for ; ran < s.options.MaxPacketsPerThreadRun; ran++ {
			conn.SetReadDeadline(time.Now().Add(s.options.SocketTimeout))
			pkt, err := framer.ReadPacket()
			if err != nil {
				if errors.Is(err, ErrConnectionClosed) {
					log.Debug("connection closed")
				} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
					log.Debug("connection idle timeout")
				} else {
					log.WithError(err).Debug("read error")
				}
				return
			}

			if pkt.buf[0] == nbSessionKeepAlive {
				s.pool.Release(pkt)
				continue
			}

			s.workers.Submit(sess, pkt)
		}
	}
}
