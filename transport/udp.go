// Package transport implements the connected-UDP media transport: a single
// socket per voice session, IP discovery, and a periodic keepalive.
//
// Grounded on the teacher's transport/udp.go (net.PacketConn, a deadline
// driven receive loop, handler dispatch), narrowed from Tox's many-peer
// dispatch map to a single stored server address, since one voice UDP flow
// only ever talks to one voice server.
package transport

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// readDeadline bounds each receive-loop iteration so Close is observed
// promptly without requiring cancellation plumbing through net.Conn.
const readDeadline = 1 * time.Second

// maxDatagramSize is large enough for the largest video RTP packet this
// core ever sends (1200-byte payload limit plus header and AEAD overhead).
const maxDatagramSize = 1500

// OnPacket is invoked once per datagram whose source address matches the
// connected server address. It runs on the receive goroutine; callers that
// need to do anything beyond quick dispatch should hand off to their own
// goroutine or channel.
type OnPacket func(payload []byte)

// Transport is a single connected UDP socket for one voice session's media
// plane.
type Transport struct {
	conn       net.PacketConn
	serverAddr net.Addr

	handlerMu sync.RWMutex
	onPacket  OnPacket

	running atomic.Bool
	wg      sync.WaitGroup
	stopCh  chan struct{}

	keepaliveStop chan struct{}
	keepaliveOnce sync.Once
}

// New constructs an unconnected transport. Call Connect to bind and start
// the receive loop.
func New(onPacket OnPacket) *Transport {
	return &Transport{
		onPacket: onPacket,
		stopCh:   make(chan struct{}),
	}
}

// Connect binds an ephemeral local UDP port, stores the server address,
// and spawns the receive goroutine.
func (t *Transport) Connect(ip string, port uint16) error {
	if t.running.Load() {
		return ErrAlreadyConnected
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Transport.Connect",
			"error":    err.Error(),
		}).Error("Failed to bind UDP socket")
		return err
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ip, strconv.Itoa(int(port))))
	if err != nil {
		conn.Close()
		return err
	}

	t.conn = conn
	t.serverAddr = addr
	t.running.Store(true)

	t.wg.Add(1)
	go t.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function":    "Transport.Connect",
		"server_addr": addr.String(),
		"local_addr":  conn.LocalAddr().String(),
	}).Info("UDP transport connected")

	return nil
}

// Send fire-and-forgets a datagram to the connected server address. Errors
// are logged but never alter session state, per the error-handling design.
func (t *Transport) Send(buf []byte) error {
	if !t.running.Load() || t.conn == nil {
		return ErrNotConnected
	}
	_, err := t.conn.WriteTo(buf, t.serverAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Transport.Send",
			"error":    err.Error(),
		}).Warn("UDP send failed")
	}
	return err
}

// Close terminates the receive loop, the keepalive goroutine, and the
// underlying socket. It is safe to call multiple times.
func (t *Transport) Close() error {
	if !t.running.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopCh)
	t.keepaliveOnce.Do(func() {
		if t.keepaliveStop != nil {
			close(t.keepaliveStop)
		}
	})
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.wg.Wait()
	logrus.WithFields(logrus.Fields{
		"function": "Transport.Close",
	}).Info("UDP transport closed")
	return err
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			// Any non-timeout error terminates the receive goroutine; the
			// session orchestrator observes this via teardown, not inline
			// retry, per the error-handling design.
			logrus.WithFields(logrus.Fields{
				"function": "Transport.receiveLoop",
				"error":    err.Error(),
			}).Warn("UDP receive loop terminating")
			return
		}

		if !sameHost(addr, t.serverAddr) {
			continue
		}

		if handler := t.handler(); handler != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			handler(payload)
		}
	}
}

// handler returns the currently installed packet handler.
func (t *Transport) handler() OnPacket {
	t.handlerMu.RLock()
	defer t.handlerMu.RUnlock()
	return t.onPacket
}

// SetHandler swaps the packet handler and returns the previous one, so a
// caller like IPDiscovery can temporarily intercept packets and restore the
// original handler afterward.
func (t *Transport) SetHandler(h OnPacket) (previous OnPacket) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	previous = t.onPacket
	t.onPacket = h
	return previous
}

func sameHost(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}

// StartKeepalive sends a fixed 2-byte pattern every interval until Close.
func (t *Transport) StartKeepalive(interval time.Duration) {
	t.keepaliveStop = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pattern := []byte{0xC9, 0x00}
		for {
			select {
			case <-t.keepaliveStop:
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				_ = t.Send(pattern)
			}
		}
	}()
}

// LocalAddr returns the bound local address, or nil if not yet connected.
func (t *Transport) LocalAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}
