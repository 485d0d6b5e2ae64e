package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/camstage/internal/domain"

	"github.com/nats-io/nats.go"
)

const (
	consumerName = "camstage-sweep-consumer"
	fetchWait    = 5 * time.Second
)

type Sweeper interface {
	Sweep(ctx context.Context) (domain.SweepReport, error)
}

// natsConsumer runs a sweep for every trigger published on the subject.
// The durable pull consumer is shared by all replicas, so each trigger is
// handled by exactly one of them.
type natsConsumer struct {
	js      nats.JetStreamContext
	stream  string
	subject string
	sweeper Sweeper

	done chan struct{}
	sub  *nats.Subscription
}

func NewConsumer(js nats.JetStreamContext, stream, subject string, sweeper Sweeper) *natsConsumer {
	return &natsConsumer{
		js:      js,
		stream:  stream,
		subject: subject,
		sweeper: sweeper,
		done:    make(chan struct{}),
	}
}

func (c *natsConsumer) Run(ctx context.Context) error {
	_, err := c.js.AddConsumer(c.stream, &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: c.subject,
		MaxAckPending: 1,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer: %w", err)
	}

	sub, err := c.js.PullSubscribe(c.subject, consumerName)
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe: %w", err)
	}
	c.sub = sub

	go func() {
		defer close(c.done)
		c.runWorker(ctx)
	}()

	slog.Info("sweep trigger consumer is running", slog.String("subject", c.subject))
	return nil
}

// Stop waits for the worker to exit after ctx is canceled and drains the
// subscription.
func (c *natsConsumer) Stop() {
	if c.sub == nil {
		return
	}
	<-c.done

	if err := c.sub.Drain(); err != nil {
		slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
	}
	slog.Info("sweep trigger consumer stopped")
}

func (c *natsConsumer) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := c.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			slog.Info("sweep triggered", slog.String("source", string(msg.Data)))

			if _, err := c.sweeper.Sweep(ctx); err != nil {
				slog.Error("sweep", slog.String("error", err.Error()))
				_ = msg.Nak()
				continue
			}
			if err := msg.Ack(); err != nil {
				slog.Warn("NATS Ack", slog.String("error", err.Error()))
			}
		}
	}
}
