// Package attachment normalizes uploaded files from their various sources
// (disk-backed multipart uploads, in-memory buffers, inline base64 payloads)
// into uniform attachment descriptors for outbound mail.
package attachment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest accepted upload payload.
const MaxFileSize = 10 << 20 // 10 MiB

// MaxFilesPerSubmission caps the number of files accepted on multi-file forms.
const MaxFilesPerSubmission = 5

// allowedExtensions is the upload allow-list. Checked before anything is
// written to disk so a rejection never leaves a temporary file behind.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// FileRejectedError reports an upload rejected before resolution: disallowed
// extension, oversize payload or too many files.
type FileRejectedError struct {
	Filename string
	Reason   string
}

// Error implements the error interface
func (e *FileRejectedError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("file rejected: %s", e.Reason)
	}
	return fmt.Sprintf("file %q rejected: %s", e.Filename, e.Reason)
}

// Attachment is a uniform reference to file content destined for an outbound
// message. Exactly one of Path and Content is populated. Path-backed
// attachments reference a temporary file under the managed upload directory;
// the delivery pipeline owns that file and removes it after the send attempts.
type Attachment struct {
	Filename    string
	ContentType string
	Path        string
	Content     []byte
}

// Disk reports whether the attachment is backed by a temporary file.
func (a *Attachment) Disk() bool {
	return a.Path != ""
}

// Read returns the attachment bytes regardless of backing store.
func (a *Attachment) Read() ([]byte, error) {
	if a.Path != "" {
		return os.ReadFile(a.Path)
	}
	return a.Content, nil
}

// CheckFilename validates a filename against the extension allow-list.
func CheckFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return &FileRejectedError{Filename: filename, Reason: fmt.Sprintf("extension %q not allowed", ext)}
	}
	return nil
}

// CheckCount validates the number of files on a submission.
func CheckCount(n int) error {
	if n > MaxFilesPerSubmission {
		return &FileRejectedError{Reason: fmt.Sprintf("at most %d files accepted, got %d", MaxFilesPerSubmission, n)}
	}
	return nil
}
