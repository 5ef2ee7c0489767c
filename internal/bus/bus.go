// Package bus wraps the NATS connection and JSON publish/subscribe
// boilerplate that the teacher repeated in every service file
// (execution_service.go, feed_handler.go, risk_state.go,
// replay_service.go each dialed nats.Connect and hand-rolled their own
// json.Marshal/Unmarshal around nc.Publish/Subscribe). Centralized here
// so every cmd/* binary shares one connection and one encoding
// convention.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Conn is a thin, typed wrapper around a *nats.Conn.
type Conn struct {
	nc *nats.Conn
}

// Connect dials url, reconnecting without limit at one-second intervals.
func Connect(url string) (*Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &Conn{nc: nc}, nil
}

// Close drains and closes the underlying connection.
func (c *Conn) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Raw exposes the underlying *nats.Conn for callers that need it
// directly (e.g. request/reply control subjects).
func (c *Conn) Raw() *nats.Conn { return c.nc }

// PublishJSON marshals v and publishes it on subject.
func (c *Conn) PublishJSON(subject string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal for %s: %w", subject, err)
	}
	return c.nc.Publish(subject, b)
}

// SubscribeJSON subscribes to subject and unmarshals each message into a
// freshly allocated value of type T, invoking fn
// with it. Decode errors are passed to onErr rather than dropped
// silently.
func SubscribeJSON[T any](c *Conn, subject string, fn func(T), onErr func(error)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("bus: decode %s: %w", subject, err))
			}
			return
		}
		fn(v)
	})
}
