// Package delivery sends assembled messages over SMTP with a two-tier
// primary/fallback transport strategy and owns the lifecycle of disk-backed
// attachments.
package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// TransportConfig is one immutable SMTP sending configuration. Two instances
// exist per process: the primary and the fallback, typically the same host on
// a different port/TLS posture.
type TransportConfig struct {
	Host               string
	Port               int
	ImplicitTLS        bool
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// Addr returns the host:port dial address.
func (c TransportConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Transport sends a fully assembled message.
type Transport interface {
	Send(ctx context.Context, from string, recipients []string, msg []byte) error
	Name() string
}

// Dialer abstracts net.Dialer for testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPTransport delivers messages to a single SMTP endpoint. Port-465 style
// endpoints use implicit TLS on connect; everything else negotiates STARTTLS
// when the server offers it. A circuit breaker fails attempts fast while the
// endpoint is known-bad, which for the primary transport routes submissions
// straight to the fallback.
type SMTPTransport struct {
	config    TransportConfig
	name      string
	helloName string
	tlsConfig *tls.Config
	dialer    Dialer
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewSMTPTransport creates a transport for the given configuration.
func NewSMTPTransport(name string, config TransportConfig, helloName string) *SMTPTransport {
	logger := slog.Default().With("component", "smtp-transport", "transport", name)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	if helloName == "" {
		helloName = "localhost"
	}

	return &SMTPTransport{
		config:    config,
		name:      name,
		helloName: helloName,
		tlsConfig: &tls.Config{
			ServerName:         config.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
		dialer:  &net.Dialer{Timeout: 30 * time.Second},
		breaker: cb,
		logger:  logger,
	}
}

// WithDialer swaps the network dialer. Used by tests.
func (t *SMTPTransport) WithDialer(d Dialer) *SMTPTransport {
	if d != nil {
		t.dialer = d
	}
	return t
}

// Name returns the transport's configured name.
func (t *SMTPTransport) Name() string {
	return t.name
}

// Send delivers msg through the SMTP endpoint. All transport-level failures
// (refused connection, auth error, timeout) surface as plain errors; the
// caller treats them all as "try the next configuration".
func (t *SMTPTransport) Send(ctx context.Context, from string, recipients []string, msg []byte) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.send(ctx, from, recipients, msg)
	})
	return err
}

func (t *SMTPTransport) send(ctx context.Context, from string, recipients []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", t.config.Addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.config.Addr(), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if t.config.ImplicitTLS {
		tlsConn := tls.Client(conn, t.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(t.helloName); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	if !t.config.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if t.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		return fmt.Errorf("data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		t.logger.Debug("QUIT failed", "error", err)
	}

	return nil
}
