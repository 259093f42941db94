package rng

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single remote round trip.
const DefaultTimeout = time.Second

// Remote talks to an rngd daemon. A connection is opened per request and
// closed once the single response line has been read.
type Remote struct {
	Addr    string
	Timeout time.Duration

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewRemote returns a client for the daemon listening on addr.
func NewRemote(addr string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Remote{Addr: addr, Timeout: timeout, dial: net.DialTimeout}
}

// Roll asks the daemon for a single die face.
func (r *Remote) Roll(sides int) (int, error) {
	if err := checkSides(sides); err != nil {
		return 0, err
	}
	v, err := r.request(fmt.Sprintf("DICE d%d", sides))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > sides {
		return 0, fmt.Errorf("%w: %q for d%d", ErrBadResponse, v, sides)
	}
	return n, nil
}

// RandomInt asks the daemon for an integer in [low, high].
func (r *Remote) RandomInt(low, high int) (int, error) {
	if err := checkRange(low, high); err != nil {
		return 0, err
	}
	v, err := r.request(fmt.Sprintf("RAND %d %d", low, high))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < low || n > high {
		return 0, fmt.Errorf("%w: %q for [%d, %d]", ErrBadResponse, v, low, high)
	}
	return n, nil
}

// Ping reports whether the daemon answers PING with OK.
func (r *Remote) Ping() bool {
	_, err := r.request("PING")
	return err == nil
}

// request sends one command line and returns the payload following "OK ".
func (r *Remote) request(line string) (string, error) {
	conn, err := r.dial("tcp", r.Addr, r.Timeout)
	if err != nil {
		return "", fmt.Errorf("rng dial %s: %w", r.Addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(r.Timeout)); err != nil {
		return "", fmt.Errorf("rng deadline: %w", err)
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("rng write: %w", err)
	}

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("rng read: %w", err)
	}
	resp = strings.TrimRight(resp, "\r\n")
	payload, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBadResponse, resp)
	}
	return strings.TrimSpace(payload), nil
}
