// Package wshub carries a device's websocket connection: sensor samples and
// game commands come in, game events go out.
package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"shakegame/internal/events"
	"shakegame/internal/sensor"
)

const (
	TypeSample = "sample"
	TypeStart  = "start"
	TypeReset  = "reset"
	TypeHello  = "hello"
)

const writeTimeout = 5 * time.Second

// ClientMessage is the JSON structure received from devices.
type ClientMessage struct {
	Type     string  `json:"t"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Z        float64 `json:"z,omitempty"`
	Nickname string  `json:"n,omitempty"`
}

func (m ClientMessage) Sample() sensor.Sample {
	return sensor.Sample{X: m.X, Y: m.Y, Z: m.Z}
}

// Hello is sent once when a device connects.
type Hello struct {
	Type       string `json:"t"`
	Code       string `json:"code"`
	IntervalMs int64  `json:"interval"`
}

func NewHello(code string, interval time.Duration) Hello {
	return Hello{Type: TypeHello, Code: code, IntervalMs: interval.Milliseconds()}
}

// Handler receives decoded device messages.
type Handler interface {
	Sample(s sensor.Sample)
	Start(ctx context.Context, nickname string) error
	Reset(ctx context.Context) error
}

// Client is one device connection.
type Client struct {
	Code string
	Conn *websocket.Conn
	Send chan []byte
}

func NewClient(code string, conn *websocket.Conn) *Client {
	return &Client{
		Code: code,
		Conn: conn,
		Send: make(chan []byte, 64),
	}
}

// Queue encodes v and queues it for WritePump. It drops the message if the
// queue is full.
func (c *Client) Queue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("component", "wshub").Msg("marshal error")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Debug().Str("component", "wshub").Str("room", c.Code).Msg("send queue full, dropping message")
	}
}

// Forward queues every event from evs until it is closed or ctx is done.
func (c *Client) Forward(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			c.Queue(ev)
		}
	}
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.Send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump decodes device messages and dispatches them to h until the
// connection closes. Malformed messages are answered with an error event and
// otherwise ignored.
func (c *Client) ReadPump(ctx context.Context, h Handler) error {
	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Queue(events.Failed(fmt.Errorf("malformed message: %w", err)))
			continue
		}

		switch msg.Type {
		case TypeSample:
			h.Sample(msg.Sample())
		case TypeStart:
			if err := h.Start(ctx, msg.Nickname); err != nil {
				c.Queue(events.Failed(err))
			}
		case TypeReset:
			if err := h.Reset(ctx); err != nil {
				c.Queue(events.Failed(err))
			}
		default:
			c.Queue(events.Failed(fmt.Errorf("unknown message type %q", msg.Type)))
		}
	}
}
