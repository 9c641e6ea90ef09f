package vault

import (
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxSize is the upload cap when none is configured (50 MiB).
const DefaultMaxSize = 50 << 20

var (
	ErrEmptyFilename       = errors.New("no filename given")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrTooLarge            = errors.New("file exceeds size limit")
	ErrNotFound            = errors.New("file not found")
)

var allowedExtensions = map[string]bool{
	"txt": true, "pdf": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"mp3": true, "wav": true, "ogg": true,
	"mp4": true, "avi": true, "mov": true, "webm": true,
}

// Vault owns the directory holding uploaded payloads. Metadata lives in the
// store; the vault only ever sees bytes and stored names.
type Vault struct {
	dir     string
	maxSize int64
}

func New(dir string, maxSize int64) (*Vault, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Vault{dir: dir, maxSize: maxSize}, nil
}

// MaxSize is the configured payload cap in bytes.
func (v *Vault) MaxSize() int64 {
	return v.maxSize
}

type StoredFile struct {
	StoredName  string
	DisplayName string
	ContentType string
	SizeBytes   int64
}

// Accept validates the declared filename, writes the payload under a fresh
// unique stored name, and returns the metadata the caller records in the
// store. The stored name keeps the original extension but is otherwise
// independent of user input, so concurrent uploads of the same declared
// filename never collide.
func (v *Vault) Accept(r io.Reader, declaredName, mimeHint string) (*StoredFile, error) {
	if declaredName == "" {
		return nil, ErrEmptyFilename
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(declaredName), "."))
	if ext == "" || !allowedExtensions[ext] {
		return nil, ErrExtensionNotAllowed
	}

	display := SanitizeFilename(declaredName)
	storedName := uuid.NewString() + "." + ext

	dst, err := os.OpenFile(filepath.Join(v.dir, storedName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(dst, io.LimitReader(r, v.maxSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(v.dir, storedName))
		return nil, err
	}
	if n > v.maxSize {
		os.Remove(filepath.Join(v.dir, storedName))
		return nil, ErrTooLarge
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = mimeHint
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &StoredFile{
		StoredName:  storedName,
		DisplayName: display,
		ContentType: contentType,
		SizeBytes:   n,
	}, nil
}

// Open returns the payload stored under storedName. Stored names are flat
// identifiers; anything containing a path separator is rejected outright.
func (v *Vault) Open(storedName string) (*os.File, error) {
	if storedName == "" || strings.ContainsAny(storedName, `/\`) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(v.dir, storedName))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SanitizeFilename strips directory components and reduces the rest to a
// safe character set. The result is only ever shown to users and suggested
// as a download name, never used as a storage key.
func SanitizeFilename(name string) string {
	// Windows clients send backslash-separated paths
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		cleaned = "file"
	}
	return cleaned
}
