// internal/relay/nats_publisher.go
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubjectPrefix = "parknet.slots"

type publisher interface {
	Publish(subject string, data []byte) error
}

// Relay forwards slot change events to NATS, one subject per facility, so other
// services can follow occupancy without holding a websocket open.
type Relay struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, prefix string, logger *zap.Logger) (*Relay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("relay")
	opts := []nats.Option{
		nats.Name("parknet-api-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	r := New(nc, prefix, logger)
	r.conn = nc
	return r, nil
}

// New wraps an existing publisher, such as a *nats.Conn.
func New(pub publisher, prefix string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Relay{pub: pub, prefix: prefix, logger: logger}
}

func (r *Relay) Name() string { return "nats" }

// Subject is the NATS subject events for facilityID are published on.
func (r *Relay) Subject(facilityID string) string {
	return r.prefix + "." + facilityID
}

func (r *Relay) Handle(ctx context.Context, ev models.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.conn != nil && r.conn.IsClosed() {
		return fmt.Errorf("nats connection closed: %w", parking.ErrTransientUnavailable)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.pub.Publish(r.Subject(ev.FacilityID), data); err != nil {
		return fmt.Errorf("publish %s: %v: %w", r.Subject(ev.FacilityID), err, parking.ErrTransientUnavailable)
	}
	return nil
}

// Close drains pending publishes when the relay owns its connection.
func (r *Relay) Close() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("nats drain failed", zap.Error(err))
	}
	r.conn.Close()
}
