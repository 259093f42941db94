package rng

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProtocolVersion is reported in reply to VER.
const ProtocolVersion = "RNG/1"

// Server answers the rngd line protocol:
//
//	PING          -> OK PONG
//	VER           -> OK RNG/1
//	RAND <lo> <hi> -> OK <n>
//	DICE d<sides> -> OK <n>
//
// Anything else is answered with a line starting with ERR. A client may send
// several requests on one connection.
type Server struct {
	Source RNG
	Log    logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer returns a server drawing numbers from source.
func NewServer(source RNG, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Source: source, Log: log, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on l until Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.Log.WithField("addr", l.Addr().String()).Info("rngd listening")
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rngd accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handle(conn)
		}()
	}
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rngd listen %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	c.Close()
}

func (s *Server) handle(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := s.Reply(strings.TrimRight(scanner.Text(), "\r"))
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			s.Log.WithError(err).Debug("rngd write failed")
			return
		}
	}
}

// Reply computes the response line for a single request line.
func (s *Server) Reply(line string) string {
	switch {
	case line == "PING":
		return "OK PONG"
	case line == "VER":
		return "OK " + ProtocolVersion
	case strings.HasPrefix(line, "RAND "):
		var lo, hi int
		if n, err := fmt.Sscanf(line, "RAND %d %d", &lo, &hi); err != nil || n != 2 || lo > hi {
			return "ERR usage: RAND <low> <high>"
		}
		v, err := s.Source.RandomInt(lo, hi)
		if err != nil {
			return "ERR " + err.Error()
		}
		return fmt.Sprintf("OK %d", v)
	case strings.HasPrefix(line, "DICE d"):
		var sides int
		if n, err := fmt.Sscanf(line, "DICE d%d", &sides); err != nil || n != 1 || sides < 1 {
			return "ERR usage: DICE d<sides>"
		}
		v, err := s.Source.Roll(sides)
		if err != nil {
			return "ERR " + err.Error()
		}
		return fmt.Sprintf("OK %d", v)
	}
	return "ERR unknown"
}
