package session

import (
	"fmt"
	"sync/atomic"

	"github.com/nyxchat/voicecore/gatewaydial"
)

// connProxy breaks the construction-order cycle between gateway.FSM (which
// needs a Conn at construction) and gatewaydial.Dial (which needs the FSM's
// HandleOpen/HandleMessage/HandleClose methods as callbacks before it can
// produce a Conn). The FSM is built against the proxy first; the real
// connection is installed through gatewaydial.Callbacks.OnConnReady, which
// Dial invokes before starting its pumps and before OnOpen fires.
type connProxy struct {
	conn atomic.Pointer[gatewaydial.Conn]
}

func (p *connProxy) Send(payload []byte) error {
	c := p.conn.Load()
	if c == nil {
		return fmt.Errorf("session: voice gateway connection not yet established")
	}
	return c.Send(payload)
}

func (p *connProxy) Close(code int) error {
	c := p.conn.Load()
	if c == nil {
		return nil
	}
	return c.Close(code)
}
