// Package message renders submissions into email bodies and assembles the
// outbound MIME message.
package message

import (
	"fmt"
	"html"
	"strings"

	"github.com/busybox42/formrelay/internal/form"
)

// sectionOrder fixes how field groups appear in both bodies.
var sectionOrder = []form.Section{
	form.SectionPersonal,
	form.SectionProject,
	form.SectionContact,
	form.SectionComments,
}

// Render builds a plain-text and an HTML body carrying identical content,
// grouped into sections. User-supplied values are HTML-escaped in the HTML
// body. Newlines in free-text fields become <br> in HTML only; the plain-text
// body keeps them as-is.
func Render(sub *form.Submission) (text, htmlBody string) {
	var tb, hb strings.Builder

	hb.WriteString("<h2>" + html.EscapeString(subjectTitle(sub.Kind)) + "</h2>\n")

	for _, section := range sectionOrder {
		values := valuesIn(sub, section)
		if len(values) == 0 {
			continue
		}

		tb.WriteString(string(section) + "\n")
		tb.WriteString(strings.Repeat("-", len(section)) + "\n")
		hb.WriteString("<h3>" + html.EscapeString(string(section)) + "</h3>\n")

		for _, v := range values {
			tb.WriteString(fmt.Sprintf("%s: %s\n", v.Label, v.Display))

			display := html.EscapeString(v.Display)
			if v.FreeText {
				display = strings.ReplaceAll(display, "\r\n", "\n")
				display = strings.ReplaceAll(display, "\n", "<br>")
			}
			hb.WriteString(fmt.Sprintf("<p><strong>%s:</strong> %s</p>\n", html.EscapeString(v.Label), display))
		}
		tb.WriteString("\n")
	}

	return tb.String(), hb.String()
}

func valuesIn(sub *form.Submission, section form.Section) []form.Value {
	var out []form.Value
	for _, v := range sub.Values {
		if v.Section == section {
			out = append(out, v)
		}
	}
	return out
}

func subjectTitle(kind form.Kind) string {
	switch kind {
	case form.KindQuote:
		return "Quote Request"
	case form.KindSubscribe:
		return "Newsletter Subscription"
	default:
		return "Contact Form Submission"
	}
}

// Subject builds the subject line for a submission: the spec's prefix, the
// submitter's name and, for quote forms, the service-type label.
func Subject(spec form.Spec, sub *form.Submission) string {
	from := sub.Name
	if from == "" {
		from = sub.Email
	}
	subject := fmt.Sprintf("%s from %s", spec.SubjectPrefix, from)
	if sub.ServiceType != "" {
		subject = fmt.Sprintf("%s - %s", subject, sub.ServiceType)
	}
	return subject
}
