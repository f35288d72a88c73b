package chat

import (
	"context"
	"strings"
	"time"

	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/metrics"
)

const (
	defaultMaxBatch          = 10
	defaultFlushInterval     = 100 * time.Millisecond
	defaultHeartbeatInterval = 20 * time.Second
)

// Transport multiplexes a model token stream into outbound events:
// tokens are normalized, coalesced into batches of at most maxBatch
// tokens or flushInterval, and heartbeat comments keep idle
// connections alive.
type Transport struct {
	maxBatch          int
	flushInterval     time.Duration
	heartbeatInterval time.Duration
	metrics           *metrics.Metrics
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

func WithMaxBatch(n int) TransportOption {
	return func(t *Transport) { t.maxBatch = n }
}

func WithFlushInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.flushInterval = d }
}

func WithHeartbeatInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.heartbeatInterval = d }
}

func WithTransportMetrics(m *metrics.Metrics) TransportOption {
	return func(t *Transport) { t.metrics = m }
}

func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		maxBatch:          defaultMaxBatch,
		flushInterval:     defaultFlushInterval,
		heartbeatInterval: defaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Pump consumes the upstream chunk stream and writes text events to w.
// It returns the accumulated normalized text and whether any text
// event reached the client. On an upstream error the buffered batch is
// flushed only if text was already delivered; otherwise the whole
// attempt is discardable and the caller may retry.
func (t *Transport) Pump(ctx context.Context, chunks <-chan llms.StreamChunk, w EventWriter) (string, bool, error) {
	var full strings.Builder
	var batch strings.Builder
	join := &joiner{}
	batchTokens := 0
	emitted := false
	lastEvent := time.Now()

	flushTicker := time.NewTicker(t.flushInterval)
	defer flushTicker.Stop()
	heartbeat := time.NewTicker(t.heartbeatInterval)
	defer heartbeat.Stop()

	flush := func() error {
		if batch.Len() == 0 {
			batchTokens = 0
			return nil
		}
		if err := w.Event("text", TextPayload{Text: batch.String()}); err != nil {
			return err
		}
		if t.metrics != nil {
			t.metrics.StreamEvents.WithLabelValues("text").Inc()
		}
		emitted = true
		lastEvent = time.Now()
		batch.Reset()
		batchTokens = 0
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return full.String(), emitted, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				// Upstream closed without a done chunk; ship what we
				// have.
				if err := flush(); err != nil {
					return full.String(), emitted, err
				}
				return full.String(), emitted, nil
			}
			switch chunk.Type {
			case "text":
				if out := join.Append(chunk.Text); out != "" {
					full.WriteString(out)
					batch.WriteString(out)
				}
				batchTokens++
				if batchTokens >= t.maxBatch {
					if err := flush(); err != nil {
						return full.String(), emitted, err
					}
				}

			case "error":
				if emitted {
					_ = flush()
				}
				return full.String(), emitted, chunk.Error

			case "done":
				if err := flush(); err != nil {
					return full.String(), emitted, err
				}
				return full.String(), emitted, nil
			}

		case <-flushTicker.C:
			if err := flush(); err != nil {
				return full.String(), emitted, err
			}

		case <-heartbeat.C:
			if time.Since(lastEvent) < t.heartbeatInterval {
				continue
			}
			// Buffered tokens go out before any keepalive.
			if batch.Len() > 0 {
				if err := flush(); err != nil {
					return full.String(), emitted, err
				}
				continue
			}
			if err := w.Comment("heartbeat"); err != nil {
				return full.String(), emitted, err
			}
			if t.metrics != nil {
				t.metrics.StreamEvents.WithLabelValues("heartbeat").Inc()
			}
			lastEvent = time.Now()
		}
	}
}
