package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/busybox42/formrelay/internal/attachment"
)

// Outbound describes one fully assembled message ready for an SMTP transport.
type Outbound struct {
	From        string
	To          string
	ReplyTo     string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []*attachment.Attachment
}

// Recipients returns the envelope recipient list.
func (o *Outbound) Recipients() []string {
	return []string{o.To}
}

// Build assembles the RFC 5322 message bytes: headers, a multipart/alternative
// text+html body and, when attachments are present, an enclosing
// multipart/mixed with base64-encoded attachment parts.
func (o *Outbound) Build() ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", o.From)
	writeHeader(&buf, "To", o.To)
	if o.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", o.ReplyTo)
	}
	writeHeader(&buf, "Subject", o.Subject)
	writeHeader(&buf, "Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-Id", fmt.Sprintf("<%s@formrelay>", uuid.New().String()))
	writeHeader(&buf, "MIME-Version", "1.0")

	altBoundary := "alt-" + uuid.New().String()

	if len(o.Attachments) == 0 {
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altBoundary))
		buf.WriteString("\r\n")
		o.writeAlternative(&buf, altBoundary)
		return buf.Bytes(), nil
	}

	mixedBoundary := "mixed-" + uuid.New().String()
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixedBoundary))
	buf.WriteString("\r\n")

	buf.WriteString("--" + mixedBoundary + "\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary))
	o.writeAlternative(&buf, altBoundary)
	buf.WriteString("\r\n")

	for _, att := range o.Attachments {
		data, err := att.Read()
		if err != nil {
			return nil, fmt.Errorf("read attachment %q: %w", att.Filename, err)
		}

		contentType := att.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(att.Filename)))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		buf.WriteString("--" + mixedBoundary + "\r\n")
		buf.WriteString(fmt.Sprintf("Content-Type: %s; name=%q\r\n", contentType, att.Filename))
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename))
		writeBase64(&buf, data)
		buf.WriteString("\r\n")
	}

	buf.WriteString("--" + mixedBoundary + "--\r\n")
	return buf.Bytes(), nil
}

func (o *Outbound) writeAlternative(buf *bytes.Buffer, boundary string) {
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(toCRLF(o.TextBody))
	buf.WriteString("\r\n--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString(toCRLF(o.HTMLBody))
	buf.WriteString("\r\n--" + boundary + "--\r\n")
}

// writeHeader emits one header line with CR/LF stripped from the value to
// block header injection through user-controlled fields.
func writeHeader(buf *bytes.Buffer, key, value string) {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	buf.WriteString(key + ": " + strings.TrimSpace(value) + "\r\n")
}

func toCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// writeBase64 wraps encoded content at 76 columns per RFC 2045.
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if len(encoded) > 0 {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
}
