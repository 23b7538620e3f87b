package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/busybox42/formrelay/internal/form"
)

func quoteSubmission() *form.Submission {
	return form.Normalize(form.QuoteSpec, map[string][]string{
		"name":        {"Jane Doe"},
		"email":       {"jane@example.com"},
		"phone":       {"+1 555-123-4567"},
		"serviceType": {"Window Replacement"},
		"windowTypes": {"Casement", "Double Hung"},
		"comments":    {"First line\nSecond line"},
	})
}

func TestRenderSections(t *testing.T) {
	text, htmlBody := Render(quoteSubmission())

	for _, section := range []string{"Personal Details", "Project Details", "Contact Preferences", "Comments"} {
		assert.Contains(t, text, section)
		assert.Contains(t, htmlBody, "<h3>"+section+"</h3>")
	}

	assert.Contains(t, text, "Name: Jane Doe")
	assert.Contains(t, text, "Window Types: Casement, Double Hung")
	assert.Contains(t, text, "Preferred Time: "+form.NotSpecified)
}

func TestRenderNewlines(t *testing.T) {
	text, htmlBody := Render(quoteSubmission())

	// Plain text keeps raw newlines; HTML converts them to <br>.
	assert.Contains(t, text, "First line\nSecond line")
	assert.Contains(t, htmlBody, "First line<br>Second line")
}

func TestRenderEscapesHTML(t *testing.T) {
	sub := form.Normalize(form.ContactSpec, map[string][]string{
		"name":    {"<script>alert(1)</script>"},
		"email":   {"attacker@example.com"},
		"message": {"<img src=x>"},
	})

	text, htmlBody := Render(sub)

	assert.NotContains(t, htmlBody, "<script>")
	assert.Contains(t, htmlBody, "&lt;script&gt;")
	assert.NotContains(t, htmlBody, "<img")
	// The plain-text body is not HTML and passes values through untouched.
	assert.Contains(t, text, "<script>alert(1)</script>")
}

func TestSubject(t *testing.T) {
	sub := quoteSubmission()
	assert.Equal(t, "New Quote Request from Jane Doe - Window Replacement", Subject(form.QuoteSpec, sub))

	contact := form.Normalize(form.ContactSpec, map[string][]string{
		"name":  {"John"},
		"email": {"john@example.com"},
	})
	assert.Equal(t, "New Contact Form Submission from John", Subject(form.ContactSpec, contact))

	subscriber := form.Normalize(form.SubscribeSpec, map[string][]string{
		"email": {"fan@example.com"},
	})
	assert.Equal(t, "New Newsletter Subscription from fan@example.com", Subject(form.SubscribeSpec, subscriber))
}
