package sink

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/tick2trade/internal/model"
)

// NATSPublisher publishes each record as one raw 64-byte message, so
// consumers decode the same frame format the ring carries.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Publish sends every record in the batch. The batch is shared with
// other publishers, so records are copied before re-encoding.
func (p *NATSPublisher) Publish(recs []model.DecisionRecord) error {
	var frame [model.RecordSize]byte
	for i := range recs {
		rec := recs[i]
		rec.Encode(&frame)
		if err := p.nc.Publish(p.subject, frame[:]); err != nil {
			return fmt.Errorf("publish %s: %w", p.subject, err)
		}
	}
	return p.nc.Flush()
}

// Close flushes and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Flush(); err != nil {
		p.nc.Close()
		return err
	}
	p.nc.Close()
	return nil
}
