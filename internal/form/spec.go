package form

import (
	"strings"

	"github.com/google/uuid"
)

// Kind identifies which form variant a submission came from.
type Kind string

const (
	KindContact   Kind = "contact"
	KindQuote     Kind = "quote"
	KindSubscribe Kind = "subscribe"
)

// Section groups fields for rendering.
type Section string

const (
	SectionPersonal Section = "Personal Details"
	SectionProject  Section = "Project Details"
	SectionContact  Section = "Contact Preferences"
	SectionComments Section = "Comments"
)

// Placeholder strings substituted for absent optional fields. Substitution
// happens once here so the renderer never branches on absence.
const (
	NotProvided  = "Not provided"
	NotSpecified = "Not specified"
	NoneSelected = "None selected"
)

// Field describes one form field: where it renders, what label it carries and
// what to show when the submitter left it blank. Multi marks multi-select
// inputs whose values are joined into a single display string.
type Field struct {
	Name        string
	Label       string
	Section     Section
	Placeholder string
	Multi       bool
	FreeText    bool
}

// Spec is the per-endpoint field table: which fields are required, which
// optional fields appear in the relayed message and in what order, and how the
// subject line is built.
type Spec struct {
	Kind          Kind
	Required      []string
	Fields        []Field
	SubjectPrefix string
	// SubjectField, when set, names a field whose value is appended to the
	// subject as a service-type label.
	SubjectField string
}

// ContactSpec describes the general contact form.
var ContactSpec = Spec{
	Kind:          KindContact,
	Required:      []string{"name", "email"},
	SubjectPrefix: "New Contact Form Submission",
	Fields: []Field{
		{Name: "name", Label: "Name", Section: SectionPersonal},
		{Name: "email", Label: "Email", Section: SectionPersonal},
		{Name: "phone", Label: "Phone", Section: SectionPersonal, Placeholder: NotProvided},
		{Name: "subject", Label: "Subject", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "message", Label: "Message", Section: SectionComments, Placeholder: NotProvided, FreeText: true},
	},
}

// QuoteSpec describes the quote request form with its project-detail fields.
var QuoteSpec = Spec{
	Kind:          KindQuote,
	Required:      []string{"name", "email", "phone"},
	SubjectPrefix: "New Quote Request",
	SubjectField:  "serviceType",
	Fields: []Field{
		{Name: "name", Label: "Name", Section: SectionPersonal},
		{Name: "email", Label: "Email", Section: SectionPersonal},
		{Name: "phone", Label: "Phone", Section: SectionPersonal},
		{Name: "address", Label: "Address", Section: SectionPersonal, Placeholder: NotProvided},
		{Name: "city", Label: "City", Section: SectionPersonal, Placeholder: NotProvided},
		{Name: "propertyType", Label: "Property Type", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "projectType", Label: "Project Type", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "serviceType", Label: "Service Type", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "windowTypes", Label: "Window Types", Section: SectionProject, Placeholder: NoneSelected, Multi: true},
		{Name: "colorPreference", Label: "Color Preference", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "budget", Label: "Budget", Section: SectionProject, Placeholder: NotSpecified},
		{Name: "contactMethod", Label: "Preferred Contact Method", Section: SectionContact, Placeholder: NotSpecified},
		{Name: "preferredTime", Label: "Preferred Time", Section: SectionContact, Placeholder: NotSpecified},
		{Name: "comments", Label: "Comments", Section: SectionComments, Placeholder: NotProvided, FreeText: true},
	},
}

// SubscribeSpec describes the newsletter sign-up form.
var SubscribeSpec = Spec{
	Kind:          KindSubscribe,
	Required:      []string{"email"},
	SubjectPrefix: "New Newsletter Subscription",
	Fields: []Field{
		{Name: "email", Label: "Email", Section: SectionPersonal},
	},
}

// Value is one canonical field of a submission, ready for rendering.
type Value struct {
	Label    string
	Section  Section
	Display  string
	FreeText bool
}

// Submission is the canonical record derived from one form post. It is built
// once by Normalize, consumed once by the renderer and never persisted.
type Submission struct {
	ID          string
	Kind        Kind
	Name        string
	Email       string
	Phone       string
	ServiceType string
	Values      []Value
}

// Normalize maps raw request values onto the spec's canonical field list.
// Name, email and phone are trimmed, multi-select values are joined with
// ", " and absent optional fields receive their configured placeholder.
func Normalize(spec Spec, raw map[string][]string) *Submission {
	sub := &Submission{
		ID:   uuid.New().String(),
		Kind: spec.Kind,
	}

	for _, f := range spec.Fields {
		display := joinValues(raw[f.Name])
		if display == "" {
			display = f.Placeholder
		}
		sub.Values = append(sub.Values, Value{
			Label:    f.Label,
			Section:  f.Section,
			Display:  display,
			FreeText: f.FreeText,
		})

		switch f.Name {
		case "name":
			sub.Name = display
		case "email":
			sub.Email = display
		case "phone":
			if display != NotProvided {
				sub.Phone = display
			}
		}
		if spec.SubjectField != "" && f.Name == spec.SubjectField && display != f.Placeholder {
			sub.ServiceType = display
		}
	}

	return sub
}

// FlattenValues collapses raw form values to single trimmed strings for
// validation. Multi-select fields keep only their joined representation.
func FlattenValues(raw map[string][]string) map[string]string {
	flat := make(map[string]string, len(raw))
	for name, values := range raw {
		flat[name] = joinValues(values)
	}
	return flat
}

func joinValues(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
