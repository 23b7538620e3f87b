package attachment

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver turns upload sources into attachment descriptors. It owns the
// managed upload directory, creating it on demand and generating
// collision-resistant names so concurrent submissions never clash.
type Resolver struct {
	dir    string
	logger *slog.Logger
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{
		dir:    dir,
		logger: slog.Default().With("component", "attachment-resolver"),
	}
}

// Dir returns the managed upload directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// FromDisk wraps a file the HTTP layer already stored under the managed
// upload directory.
func (r *Resolver) FromDisk(path, filename string) (*Attachment, error) {
	if err := CheckFilename(filename); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, &FileRejectedError{Filename: filename, Reason: fmt.Sprintf("file exceeds %d bytes", MaxFileSize)}
	}
	return &Attachment{Filename: filename, Path: path}, nil
}

// FromBuffer wraps an upload the HTTP layer buffered in memory.
func (r *Resolver) FromBuffer(filename, contentType string, data []byte) (*Attachment, error) {
	if err := CheckFilename(filename); err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, &FileRejectedError{Filename: filename, Reason: fmt.Sprintf("file exceeds %d bytes", MaxFileSize)}
	}
	return &Attachment{Filename: filename, ContentType: contentType, Content: data}, nil
}

// FromBase64 decodes an inline base64 payload, optionally prefixed with a
// data-URI header, and stores it under the managed upload directory. The
// extension and size checks run before the file is written so a rejection
// never leaks a temporary file.
func (r *Resolver) FromBase64(filename, payload string) (*Attachment, error) {
	if err := CheckFilename(filename); err != nil {
		return nil, err
	}

	// Strip a "data:application/pdf;base64," style prefix if present.
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &FileRejectedError{Filename: filename, Reason: "invalid base64 payload"}
	}
	if len(data) > MaxFileSize {
		return nil, &FileRejectedError{Filename: filename, Reason: fmt.Sprintf("file exceeds %d bytes", MaxFileSize)}
	}

	path, err := r.store(filename, data)
	if err != nil {
		return nil, err
	}
	return &Attachment{Filename: filename, Path: path}, nil
}

// StoreUpload streams a multipart upload to a unique path under the managed
// upload directory, enforcing the allow-list and size cap. The read is capped
// at one byte over the limit so oversize uploads fail without buffering the
// whole payload.
func (r *Resolver) StoreUpload(filename string, src io.Reader) (*Attachment, error) {
	if err := CheckFilename(filename); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, &FileRejectedError{Filename: filename, Reason: fmt.Sprintf("file exceeds %d bytes", MaxFileSize)}
	}

	path, err := r.store(filename, data)
	if err != nil {
		return nil, err
	}
	return &Attachment{Filename: filename, Path: path}, nil
}

// store writes data to a collision-resistant path, creating the upload
// directory if it does not exist yet.
func (r *Resolver) store(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
	path := filepath.Join(r.dir, name)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	r.logger.Debug("Stored upload", "filename", filename, "path", path, "size", len(data))
	return path, nil
}
