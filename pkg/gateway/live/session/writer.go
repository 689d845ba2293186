package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	// drainWindow bounds how long queued frames may still be written once the
	// session context is done.
	drainWindow = 100 * time.Millisecond
)

type frameConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// frame is one queued websocket message. Empty frames are dropped.
type frame struct {
	opcode int
	data   []byte
}

func textFrame(data []byte) frame   { return frame{opcode: websocket.TextMessage, data: data} }
func binaryFrame(data []byte) frame { return frame{opcode: websocket.BinaryMessage, data: data} }

// pump is the only writer on a connection. Frames leave in queue order with
// keepalive pings between them; on shutdown it drains what is queued, sends
// a normal close and closes the connection.
type pump struct {
	conn         frameConn
	frames       <-chan frame
	pingInterval time.Duration
	writeTimeout time.Duration
}

func newPump(conn frameConn, frames <-chan frame, cfg Config) *pump {
	p := &pump{
		conn:         conn,
		frames:       frames,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
	if p.pingInterval <= 0 {
		p.pingInterval = defaultPingInterval
	}
	if p.writeTimeout <= 0 {
		p.writeTimeout = defaultWriteTimeout
	}
	return p
}

// run returns nil when ctx ends or frames is closed, otherwise the first
// write error.
func (p *pump) run(ctx context.Context) error {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.hangUp()
			return nil
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(p.writeTimeout)); err != nil {
				return err
			}
		case f, ok := <-p.frames:
			if !ok {
				return nil
			}
			if err := p.write(f); err != nil {
				return err
			}
		}
	}
}

func (p *pump) write(f frame) error {
	if len(f.data) == 0 {
		return nil
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(f.opcode, f.data)
}

// drain writes frames that were queued before shutdown, such as a final
// error, without blocking on an empty queue.
func (p *pump) drain() {
	window := min(drainWindow, p.writeTimeout)
	stop := time.Now().Add(window)
	for time.Now().Before(stop) {
		select {
		case f, ok := <-p.frames:
			if !ok || p.write(f) != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *pump) hangUp() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.writeTimeout))
	_ = p.conn.Close()
}
