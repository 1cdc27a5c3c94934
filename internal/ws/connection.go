package ws

import (
	"context"
	"errors"
	"socketd/internal/logging"
	"socketd/internal/models"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type wsConnection interface {
	Close() error
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type messageHub interface {
	Join(s *Session) chan []byte
	Leave(ctx context.Context, s *Session)
	Dispatch(ctx context.Context, s *Session, frame models.Frame)
}

type Timing struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteWait    time.Duration
}

func (t Timing) readDeadline() time.Time {
	return time.Now().Add(t.PingInterval + t.PingTimeout)
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	session    *Session
	timing     Timing
	fromClient chan models.Frame
	fromServer chan []byte
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	session *Session,
	timing Timing,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		session:    session,
		timing:     timing,
		fromClient: make(chan models.Frame),
		fromServer: hub.Join(session),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(context.WithoutCancel(ctx), c.session)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !isClosure(err) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		if err := c.ws.SetReadDeadline(c.timing.readDeadline()); err != nil {
			return err
		}
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			logging.Debug().Str("conn_id", c.session.ID).Msg("ignoring undecodable frame")
			continue
		}

		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	ping := time.NewTicker(c.timing.PingInterval)
	defer ping.Stop()

	for {
		select {
		case frame := <-c.fromClient:
			c.hub.Dispatch(ctx, c.session, frame)
		case msg, ok := <-c.fromServer:
			if !ok {
				return nil
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return nil
		}
	}
}

func (c *Connection) write(kind int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.timing.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}

// isClosure reports the ordinary ways a peer goes away.
func isClosure(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
