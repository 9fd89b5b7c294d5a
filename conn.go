// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"context"
	"time"
)

// MaxTimeout bounds every request timeout. Larger or non-positive values
// fall back to the connection default.
const MaxTimeout = 24 * time.Hour

// ConnectOptions tunes a connection. Zero fields take the client's
// configured defaults.
type ConnectOptions struct {
	DefaultActorID   int64
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
}

// Connection is a validated transport endpoint. The zero Connection is
// invalid, and every operation on an invalid Connection fails
// immediately without side effects.
type Connection struct {
	valid            bool
	handle           Handle
	Host             string
	Port             int
	Timeout          time.Duration
	DefaultActorID   int64
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
}

// Valid reports whether c was returned by a successful Connect.
func (c Connection) Valid() bool {
	return c.valid
}

// Connect asks the transport for an endpoint at host:port.
// On failure it returns the invalid Connection and the cause.
func (c *Client) Connect(ctx context.Context, host string, port int, opts ConnectOptions) (Connection, error) {
	if host == "" || port <= 0 || port > 65535 {
		c.log.Warn().Str("host", host).Int("port", port).Msg("wrong rpc connection address")
		return Connection{}, ErrInvalidConnection
	}
	opts.Timeout = clampTimeout(opts.Timeout, c.cfg.DefaultTimeout)
	opts.ConnectTimeout = clampTimeout(opts.ConnectTimeout, c.cfg.ConnectTimeout)
	opts.ReconnectTimeout = clampTimeout(opts.ReconnectTimeout, c.cfg.ReconnectTimeout)

	h, err := c.transport.Connect(ctx, host, port, opts)
	if err != nil {
		c.log.Warn().Err(err).Str("host", host).Int("port", port).Msg("rpc connect failed")
		return Connection{}, err
	}
	return Connection{
		valid:            true,
		handle:           h,
		Host:             host,
		Port:             port,
		Timeout:          opts.Timeout,
		DefaultActorID:   opts.DefaultActorID,
		ConnectTimeout:   opts.ConnectTimeout,
		ReconnectTimeout: opts.ReconnectTimeout,
	}, nil
}

func clampTimeout(d, fallback time.Duration) time.Duration {
	if d <= 0 || d > MaxTimeout {
		return fallback
	}
	return d
}
