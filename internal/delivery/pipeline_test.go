package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busybox42/formrelay/internal/attachment"
	"github.com/busybox42/formrelay/internal/form"
)

// mockTransport records sends and fails on demand.
type mockTransport struct {
	name    string
	err     error
	calls   int
	lastMsg []byte
}

func (m *mockTransport) Send(ctx context.Context, from string, recipients []string, msg []byte) error {
	m.calls++
	m.lastMsg = msg
	return m.err
}

func (m *mockTransport) Name() string { return m.name }

func testPipeline(primary, fallback Transport) *Pipeline {
	return NewPipeline(Config{
		Sender:    "forms@example.com",
		Recipient: "office@example.com",
	}, primary, fallback)
}

func contactSubmission() (form.Spec, *form.Submission) {
	return form.ContactSpec, form.Normalize(form.ContactSpec, map[string][]string{
		"name":    {"Jane Doe"},
		"email":   {"jane@example.com"},
		"message": {"Please call me back"},
	})
}

func quoteSubmission() (form.Spec, *form.Submission) {
	return form.QuoteSpec, form.Normalize(form.QuoteSpec, map[string][]string{
		"name":        {"Jane Doe"},
		"email":       {"jane@example.com"},
		"phone":       {"+1 555-123-4567"},
		"serviceType": {"Window Replacement"},
	})
}

func diskAttachment(t *testing.T) *attachment.Attachment {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0600))
	return &attachment.Attachment{Filename: "quote.pdf", Path: path}
}

func TestDeliverPrimarySucceeds(t *testing.T) {
	primary := &mockTransport{name: "primary"}
	fallback := &mockTransport{name: "fallback"}
	spec, sub := contactSubmission()

	outcome := testPipeline(primary, fallback).Deliver(context.Background(), spec, sub, nil)

	assert.True(t, outcome.Delivered)
	assert.False(t, outcome.UsedFallback)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls, "fallback must not run after a primary success")
}

func TestDeliverFallbackAfterPrimaryFailure(t *testing.T) {
	primary := &mockTransport{name: "primary", err: errors.New("connection refused")}
	fallback := &mockTransport{name: "fallback"}
	spec, sub := quoteSubmission()
	att := diskAttachment(t)

	outcome := testPipeline(primary, fallback).Deliver(context.Background(), spec, sub, []*attachment.Attachment{att})

	assert.True(t, outcome.Delivered)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	// The temp file is removed after the fallback attempt completes.
	_, err := os.Stat(att.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeliverBothTransportsFail(t *testing.T) {
	primary := &mockTransport{name: "primary", err: errors.New("auth failed")}
	fallback := &mockTransport{name: "fallback", err: errors.New("timeout")}
	spec, sub := quoteSubmission()
	att := diskAttachment(t)

	outcome := testPipeline(primary, fallback).Deliver(context.Background(), spec, sub, []*attachment.Attachment{att})

	assert.False(t, outcome.Delivered)
	assert.False(t, outcome.UsedFallback)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "timeout", "last error wins")

	// Cleanup still runs on total failure.
	_, err := os.Stat(att.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeliverNoFallbackConfigured(t *testing.T) {
	primary := &mockTransport{name: "primary", err: errors.New("connection refused")}
	spec, sub := contactSubmission()

	outcome := testPipeline(primary, nil).Deliver(context.Background(), spec, sub, nil)

	assert.False(t, outcome.Delivered)
	require.Error(t, outcome.Err)
}

func TestCleanupSwallowsMissingFile(t *testing.T) {
	primary := &mockTransport{name: "primary"}
	spec, sub := contactSubmission()

	att := diskAttachment(t)
	require.NoError(t, os.Remove(att.Path)) // already gone before cleanup

	assert.NotPanics(t, func() {
		outcome := testPipeline(primary, nil).Deliver(context.Background(), spec, sub, []*attachment.Attachment{att})
		assert.True(t, outcome.Delivered)
	})
}

func TestDeliverMemoryAttachmentNeedsNoCleanup(t *testing.T) {
	primary := &mockTransport{name: "primary"}
	spec, sub := contactSubmission()
	att := &attachment.Attachment{Filename: "photo.png", ContentType: "image/png", Content: []byte{1, 2, 3}}

	outcome := testPipeline(primary, nil).Deliver(context.Background(), spec, sub, []*attachment.Attachment{att})

	assert.True(t, outcome.Delivered)
	assert.Contains(t, string(primary.lastMsg), `filename="photo.png"`)
}

func TestDeliverReplyToAndSubject(t *testing.T) {
	primary := &mockTransport{name: "primary"}
	spec, sub := quoteSubmission()

	testPipeline(primary, nil).Deliver(context.Background(), spec, sub, nil)

	msg := string(primary.lastMsg)
	assert.Contains(t, msg, "Reply-To: jane@example.com\r\n")
	assert.Contains(t, msg, "Subject: New Quote Request from Jane Doe - Window Replacement\r\n")
	assert.Contains(t, msg, "To: office@example.com\r\n")
}
