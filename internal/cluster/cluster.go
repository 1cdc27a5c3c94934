// Package cluster carries emissions between socketd instances so that each
// one can deliver to its own connections.
package cluster

import (
	"context"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrClosed = errors.New("cluster bus closed")

// Envelope is one emission as it travels between instances.
type Envelope struct {
	Origin  string `msgpack:"o"`
	Channel string `msgpack:"c,omitempty"` // empty means everyone
	Event   string `msgpack:"e"`
	Except  string `msgpack:"x,omitempty"` // connection id to skip
	Frame   []byte `msgpack:"f"`           // encoded frame, written as is
}

func (e *Envelope) MarshalBinary() ([]byte, error) {
	type alias Envelope
	return msgpack.Marshal((*alias)(e))
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	type alias Envelope
	return msgpack.Unmarshal(data, (*alias)(e))
}

// Handler receives envelopes published by any instance, this one included.
type Handler func(Envelope)

type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks delivering envelopes to h until ctx is done or the
	// subscription fails.
	Subscribe(ctx context.Context, h Handler) error
	Name() string
	Close() error
}

// Local is the single-instance bus: nothing leaves the process.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (*Local) Publish(context.Context, Envelope) error { return nil }

func (*Local) Subscribe(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (*Local) Name() string { return "local" }

func (*Local) Close() error { return nil }
