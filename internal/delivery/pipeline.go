package delivery

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/busybox42/formrelay/internal/attachment"
	"github.com/busybox42/formrelay/internal/form"
	"github.com/busybox42/formrelay/internal/message"
)

// Outcome is the result of one delivery sequence. A failed delivery is a
// normal, representable result; the pipeline never returns an error for it.
type Outcome struct {
	Delivered    bool
	UsedFallback bool
	Err          error
}

// Config holds the pipeline's sending identity and timing.
type Config struct {
	Sender         string
	Recipient      string
	AttemptTimeout time.Duration
}

// Pipeline orchestrates render → attach → send-primary → send-fallback →
// cleanup for one submission at a time. Transports are tried sequentially; a
// single success is sufficient.
type Pipeline struct {
	config   Config
	primary  Transport
	fallback Transport
	logger   *slog.Logger
	metrics  *Metrics
}

// NewPipeline creates a delivery pipeline. fallback may be nil, in which case
// a primary failure is final.
func NewPipeline(config Config, primary, fallback Transport) *Pipeline {
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	return &Pipeline{
		config:   config,
		primary:  primary,
		fallback: fallback,
		logger:   slog.Default().With("component", "delivery-pipeline"),
		metrics:  GetMetrics(),
	}
}

// Deliver renders the submission, attaches the resolved files and sends the
// message via the primary transport, falling back to the secondary on any
// primary failure. Every disk-backed attachment's temporary file is removed
// exactly once after the attempts complete, success or failure.
func (p *Pipeline) Deliver(ctx context.Context, spec form.Spec, sub *form.Submission, attachments []*attachment.Attachment) Outcome {
	defer p.cleanup(attachments)

	start := time.Now()
	defer func() {
		p.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	text, html := message.Render(sub)
	out := &message.Outbound{
		From:        p.config.Sender,
		To:          p.config.Recipient,
		ReplyTo:     sub.Email,
		Subject:     message.Subject(spec, sub),
		TextBody:    text,
		HTMLBody:    html,
		Attachments: attachments,
	}

	raw, err := out.Build()
	if err != nil {
		p.logger.Error("Message assembly failed", "submission_id", sub.ID, "error", err)
		return Outcome{Err: err}
	}

	p.logger.Info("Starting delivery",
		"submission_id", sub.ID,
		"form", sub.Kind,
		"attachments", len(attachments),
		"size", len(raw),
	)

	if err := p.attempt(ctx, p.primary, out, raw); err == nil {
		p.metrics.DeliverySuccesses.Inc()
		p.logger.Info("Delivered via primary transport", "submission_id", sub.ID, "duration", time.Since(start))
		return Outcome{Delivered: true}
	} else if p.fallback == nil {
		p.metrics.DeliveryFailures.Inc()
		p.logger.Error("Delivery failed, no fallback configured", "submission_id", sub.ID, "error", err)
		return Outcome{Err: err}
	} else {
		p.logger.Warn("Primary transport failed, trying fallback", "submission_id", sub.ID, "error", err)
	}

	if err := p.attempt(ctx, p.fallback, out, raw); err != nil {
		p.metrics.DeliveryFailures.Inc()
		p.logger.Error("Fallback transport failed", "submission_id", sub.ID, "error", err)
		return Outcome{Err: err}
	}

	p.metrics.DeliverySuccesses.Inc()
	p.metrics.FallbackDeliveries.Inc()
	p.logger.Info("Delivered via fallback transport", "submission_id", sub.ID, "duration", time.Since(start))
	return Outcome{Delivered: true, UsedFallback: true}
}

// attempt performs one send with the per-attempt timeout applied.
func (p *Pipeline) attempt(ctx context.Context, t Transport, out *message.Outbound, raw []byte) error {
	p.metrics.DeliveryAttempts.WithLabelValues(t.Name()).Inc()

	ctx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	defer cancel()

	return t.Send(ctx, p.config.Sender, out.Recipients(), raw)
}

// cleanup removes every disk-backed attachment's temporary file. Best effort:
// a failure (including an already-deleted file) is logged and never escalated.
func (p *Pipeline) cleanup(attachments []*attachment.Attachment) {
	for _, att := range attachments {
		if !att.Disk() {
			continue
		}
		if err := os.Remove(att.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			p.metrics.CleanupFailures.Inc()
			p.logger.Warn("Failed to remove temporary upload", "path", att.Path, "error", err)
		}
	}
}
