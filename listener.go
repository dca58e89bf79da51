package smb1d

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// RequestDispatcher runs one request packet to completion against a
// session, producing and sending whatever response(s) the opcode requires.
// dispatcher.go supplies the concrete implementation; Server only needs the
// seam so listener/acceptor startup doesn't depend on dispatch internals.
type RequestDispatcher interface {
	Dispatch(ctx context.Context, session *Session, pkt *Packet)
}

// Server owns the listening sockets, the shared packet pool and worker
// pool, and every live session (spec.md §4.4, §9 "Global state"). One
// instance serves both the NetBIOS (139) and direct-TCP (445) transports.
type Server struct {
	options *ServerOptions
	shares  ShareRegistry
	auth    Authenticator
	notify  ChangeNotifyHandler
	dispatcher RequestDispatcher

	pool    *PacketPool
	workers *WorkerPool

	log *logrus.Entry

	nbListener  net.Listener
	tcpListener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessMu   sync.Mutex
	sessions map[*Session]struct{}
}

// NewServer wires the collaborators together but does not open any socket;
// call Start to begin accepting connections.
func NewServer(options *ServerOptions, shares ShareRegistry, auth Authenticator, notify ChangeNotifyHandler, dispatcher RequestDispatcher, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	poolCfg := DefaultPacketPoolConfig()
	poolCfg.OverSizeCeiling = options.OverSizeCeiling
	poolCfg.LeaseDuration = options.LeaseDuration
	poolCfg.AllocateWait = options.AllocateWait
	if options.PacketPoolMaxSize > 0 {
		poolCfg.LargestPooledSize = options.PacketPoolMaxSize
	}

	s := &Server{
		options:    options,
		shares:     shares,
		auth:       auth,
		notify:     notify,
		dispatcher: dispatcher,
		pool:       NewPacketPool(poolCfg, log.WithField("component", "packetpool")),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[*Session]struct{}),
	}
	s.workers = NewWorkerPool(options.Workers, options.QueueDepth, log.WithField("component", "workerpool"), s.dispatchOne)
	return s
}

// Start opens whichever transports ServerOptions enables and begins
// accepting connections in background goroutines (spec.md §4.4 "Listen").
func (s *Server) Start() error {
	if s.options.EnableNetBIOS {
		addr := fmt.Sprintf(":%d", s.options.NetBIOSPort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("smb1d: listen netbios: %w", err)
		}
		s.nbListener = ln
		s.log.WithField("addr", addr).Info("listening for NetBIOS session service")
		s.wg.Add(1)
		go s.acceptLoop(ln, TransportNetBIOS)
	}

	if s.options.EnableTCPSMB {
		addr := fmt.Sprintf(":%d", s.options.SMBPort)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			if s.nbListener != nil {
				s.nbListener.Close()
			}
			return fmt.Errorf("smb1d: listen direct-tcp: %w", err)
		}
		s.tcpListener = ln
		s.log.WithField("addr", addr).Info("listening for direct SMB over TCP")
		s.wg.Add(1)
		go s.acceptLoop(ln, TransportDirectTCP)
	}

	return nil
}

// Stop closes the listeners, hangs up every live session, and waits for
// the accept/read loops and worker pool to drain.
func (s *Server) Stop() {
	s.cancel()
	if s.nbListener != nil {
		s.nbListener.Close()
	}
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}

	s.sessMu.Lock()
	for sess := range s.sessions {
		sess.Hangup(s.notify)
	}
	s.sessMu.Unlock()

	s.wg.Wait()
	s.workers.Close()
	s.pool.Close()
}

// Addr reports the address a given transport is bound to, or nil if that
// transport wasn't enabled.
func (s *Server) Addr(kind TransportKind) net.Addr {
	if kind == TransportNetBIOS && s.nbListener != nil {
		return s.nbListener.Addr()
	}
	if kind == TransportDirectTCP && s.tcpListener != nil {
		return s.tcpListener.Addr()
	}
	return nil
}

func (s *Server) trackSession(sess *Session) {
	s.sessMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessMu.Unlock()
}

func (s *Server) untrackSession(sess *Session) {
	s.sessMu.Lock()
	delete(s.sessions, sess)
	s.sessMu.Unlock()
}

func (s *Server) dispatchOne(ctx context.Context, sess *Session, pkt *Packet) {
	s.dispatcher.Dispatch(ctx, sess, pkt)
}

// Options, Shares, Auth, and Notify expose the collaborators wired into
// NewServer, for dispatcher.go's handlers and the IPC/testdouble setup.
func (s *Server) Options() *ServerOptions        { return s.options }
func (s *Server) Shares() ShareRegistry          { return s.shares }
func (s *Server) Auth() Authenticator            { return s.auth }
func (s *Server) Notify() ChangeNotifyHandler    { return s.notify }
func (s *Server) Pool() *PacketPool              { return s.pool }
