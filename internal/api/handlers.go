package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/busybox42/formrelay/internal/attachment"
	"github.com/busybox42/formrelay/internal/form"
	"github.com/busybox42/formrelay/internal/logging"
)

// maxRequestMemory bounds how much of a multipart body is held in memory
// before the runtime spills to temporary files.
const maxRequestMemory = 32 << 20

// genericFailure is the only delivery-failure text a submitter ever sees.
// Transport details stay in the server log.
const genericFailure = "Something went wrong sending your message. Please try again later."

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) // Best effort
}

// handleContactForm accepts the general contact form: multipart fields
// Name/Email/Subject/Message plus one optional file upload.
func (s *Server) handleContactForm(w http.ResponseWriter, r *http.Request) {
	s.metrics.SubmissionsReceived.WithLabelValues(string(form.KindContact)).Inc()

	if err := r.ParseMultipartForm(maxRequestMemory); err != nil {
		s.rejectJSON(w, form.KindContact, "bad_request", "Could not read the submitted form.")
		return
	}

	raw := map[string][]string{
		"name":    {r.FormValue("Name")},
		"email":   {r.FormValue("Email")},
		"phone":   {r.FormValue("Phone")},
		"subject": {r.FormValue("Subject")},
		"message": {r.FormValue("Message")},
	}

	if msg, ok := s.validate(form.ContactSpec, raw); !ok {
		s.rejectJSON(w, form.KindContact, "validation", msg)
		return
	}

	var attachments []*attachment.Attachment
	if att, err := s.resolveSingleUpload(r, "file"); err != nil {
		s.rejectJSON(w, form.KindContact, "file_rejected", rejectionMessage(err))
		return
	} else if att != nil {
		attachments = append(attachments, att)
	}

	sub := form.Normalize(form.ContactSpec, raw)
	// A client disconnect must not abandon an in-flight send.
	outcome := s.pipeline.Deliver(context.WithoutCancel(r.Context()), form.ContactSpec, sub, attachments)
	if !outcome.Delivered {
		writeJSON(w, http.StatusInternalServerError, submitResponse{Success: false, Message: genericFailure})
		return
	}

	http.Redirect(w, r, "/thank-you.html", http.StatusSeeOther)
}

// handleSubscribe accepts the newsletter form: a single email field, posted
// either as a form body or as JSON. Both outcomes answer with a redirect.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.metrics.SubmissionsReceived.WithLabelValues(string(form.KindSubscribe)).Inc()

	email := s.subscribeEmail(r)
	raw := map[string][]string{"email": {email}}

	if _, ok := s.validate(form.SubscribeSpec, raw); !ok {
		s.metrics.SubmissionsRejected.WithLabelValues(string(form.KindSubscribe), "validation").Inc()
		http.Redirect(w, r, "/error.html", http.StatusSeeOther)
		return
	}

	sub := form.Normalize(form.SubscribeSpec, raw)
	outcome := s.pipeline.Deliver(context.WithoutCancel(r.Context()), form.SubscribeSpec, sub, nil)
	if !outcome.Delivered {
		http.Redirect(w, r, "/error.html", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/thank-you.html", http.StatusSeeOther)
}

// subscribeEmail reads the email field from a JSON or form-encoded body.
func (s *Server) subscribeEmail(r *http.Request) string {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			return body.Email
		}
		return ""
	}
	return r.FormValue("email")
}

// handleQuoteForm accepts the quote request form: the project-detail fields,
// up to five photo uploads and an optional inline base64 document.
func (s *Server) handleQuoteForm(w http.ResponseWriter, r *http.Request) {
	s.metrics.SubmissionsReceived.WithLabelValues(string(form.KindQuote)).Inc()

	if err := r.ParseMultipartForm(maxRequestMemory); err != nil {
		s.rejectJSON(w, form.KindQuote, "bad_request", "Could not read the submitted form.")
		return
	}

	raw := map[string][]string{}
	for _, f := range form.QuoteSpec.Fields {
		raw[f.Name] = r.MultipartForm.Value[f.Name]
	}

	if msg, ok := s.validate(form.QuoteSpec, raw); !ok {
		s.rejectJSON(w, form.KindQuote, "validation", msg)
		return
	}

	attachments, err := s.resolveQuoteUploads(r)
	if err != nil {
		s.rejectJSON(w, form.KindQuote, "file_rejected", rejectionMessage(err))
		return
	}

	sub := form.Normalize(form.QuoteSpec, raw)
	outcome := s.pipeline.Deliver(context.WithoutCancel(r.Context()), form.QuoteSpec, sub, attachments)
	if !outcome.Delivered {
		http.Redirect(w, r, "/error.html", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/thank-you.html", http.StatusSeeOther)
}

// validate runs the required-field, email and phone checks for a spec against
// already-parsed raw values. It returns a user-facing message when invalid.
func (s *Server) validate(spec form.Spec, raw map[string][]string) (string, bool) {
	flat := form.FlattenValues(raw)

	if err := form.RequireNonEmpty(flat, spec.Required); err != nil {
		var missing *form.MissingFieldError
		if errors.As(err, &missing) {
			return "Please fill in the required fields: " + strings.Join(missing.Fields, ", ") + ".", false
		}
		return "Please fill in all required fields.", false
	}
	if !form.IsValidEmail(flat["email"]) {
		return "Please provide a valid email address.", false
	}
	if !form.IsValidPhone(flat["phone"]) {
		return "Please provide a valid phone number.", false
	}
	return "", true
}

// rejectJSON answers a user-correctable failure with 400 JSON and counts it.
func (s *Server) rejectJSON(w http.ResponseWriter, kind form.Kind, reason, msg string) {
	s.metrics.SubmissionsRejected.WithLabelValues(string(kind), reason).Inc()
	writeJSON(w, http.StatusBadRequest, submitResponse{Success: false, Message: msg})
}

// rejectionMessage maps an attachment error to a user-facing message without
// leaking server-side details.
func rejectionMessage(err error) string {
	var rejected *attachment.FileRejectedError
	if errors.As(err, &rejected) {
		return "File upload rejected: " + rejected.Reason + "."
	}
	return "The uploaded file could not be processed."
}

// resolveSingleUpload pulls one optional upload off the request and buffers it
// in memory; a single contact-form file never needs to touch the upload
// directory. The filename check runs before anything is read.
func (s *Server) resolveSingleUpload(r *http.Request, field string) (*attachment.Attachment, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := attachment.CheckFilename(header.Filename); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, attachment.MaxFileSize+1))
	if err != nil {
		return nil, err
	}

	return s.resolver.FromBuffer(header.Filename, header.Header.Get("Content-Type"), data)
}

// resolveQuoteUploads gathers the photo uploads and the optional inline
// base64 document. Any single rejection abandons every file resolved so far.
func (s *Server) resolveQuoteUploads(r *http.Request) ([]*attachment.Attachment, error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["photos"]
	}

	if err := attachment.CheckCount(len(headers)); err != nil {
		return nil, err
	}

	// Validate every filename up front so nothing is written when any one
	// of them is disallowed.
	for _, h := range headers {
		if err := attachment.CheckFilename(h.Filename); err != nil {
			return nil, err
		}
	}

	var attachments []*attachment.Attachment
	for _, h := range headers {
		file, err := h.Open()
		if err != nil {
			s.cleanupPartial(attachments)
			return nil, err
		}
		att, err := s.resolver.StoreUpload(h.Filename, file)
		file.Close()
		if err != nil {
			s.cleanupPartial(attachments)
			return nil, err
		}
		attachments = append(attachments, att)
	}

	if payload := r.FormValue("document"); payload != "" {
		name := r.FormValue("documentName")
		att, err := s.resolver.FromBase64(name, payload)
		if err != nil {
			s.cleanupPartial(attachments)
			return nil, err
		}
		attachments = append(attachments, att)
	}

	return attachments, nil
}

// cleanupPartial removes files stored before a later upload was rejected.
func (s *Server) cleanupPartial(attachments []*attachment.Attachment) {
	for _, att := range attachments {
		if att.Disk() {
			_ = os.Remove(att.Path)
		}
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LogLevelRequest represents a log level change request.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse represents a log level response.
type LogLevelResponse struct {
	CurrentLevel string `json:"current_level"`
	Message      string `json:"message,omitempty"`
}

// handleGetLogLevel returns the current log level.
func (s *Server) handleGetLogLevel(w http.ResponseWriter, r *http.Request) {
	level := logging.GetLevelManager().GetLevel()
	writeJSON(w, http.StatusOK, LogLevelResponse{CurrentLevel: logging.LevelToString(level)})
}

// handleSetLogLevel changes the log level at runtime.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	level, err := logging.StringToLevel(req.Level)
	if err != nil {
		http.Error(w, "Invalid log level. Valid levels: debug, info, warn, error", http.StatusBadRequest)
		return
	}

	logging.GetLevelManager().SetLevel(level)
	writeJSON(w, http.StatusOK, LogLevelResponse{
		CurrentLevel: logging.LevelToString(level),
		Message:      "Log level updated successfully",
	})
}
