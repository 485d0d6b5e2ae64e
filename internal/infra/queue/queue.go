package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamName is the JetStream stream that carries sweep triggers.
const StreamName = "CAMSTAGE_SWEEP"

type publisher struct {
	js      nats.JetStreamContext
	subject string
	now     func() time.Time
}

func New(js nats.JetStreamContext, subject string) *publisher {
	return &publisher{
		js:      js,
		subject: subject,
		now:     time.Now,
	}
}

// StreamConfig describes the trigger stream. Triggers are only useful for a
// short while, so they expire after maxAge.
func StreamConfig(subject string, maxAge time.Duration) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
		Replicas: 1,
		MaxAge:   maxAge,
	}
}

// PublishSweep asks one stager replica to run a retention sweep.
func (p *publisher) PublishSweep(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("empty trigger source")
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    []byte(source),
		Header:  nats.Header{},
	}
	msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s-%d", source, p.now().UnixNano()))

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish sweep trigger: %w", err)
	}

	slog.Info(
		"sweep trigger published",
		slog.String("source", source),
		slog.String("subject", p.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
