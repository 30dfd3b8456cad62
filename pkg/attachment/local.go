package attachment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// LocalManager stores attachment content on the local filesystem. All
// operations are confined to baseDir to prevent path traversal. Intended for
// development and tests; production deployments should use S3Manager.
type LocalManager struct {
	baseDir string // Absolute path - all objects stored within this directory
	baseURL string // URL prefix for serving files (e.g., "/attachments/")
	prefix  string
}

// LocalOption defines a function that configures LocalManager.
type LocalOption func(*LocalManager)

// WithLocalKeyPrefix overrides the subdirectory objects are stored under.
func WithLocalKeyPrefix(prefix string) LocalOption {
	return func(m *LocalManager) {
		m.prefix = strings.Trim(prefix, "/")
	}
}

// NewLocalManager creates a filesystem-backed attachment manager. baseDir is
// resolved to an absolute path and created if it doesn't exist.
func NewLocalManager(baseDir, baseURL string, opts ...LocalOption) (*LocalManager, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve base directory: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(absBaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}

	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	m := &LocalManager{
		baseDir: absBaseDir,
		baseURL: baseURL,
		prefix:  "attachments",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// resolvePath confines a stored key to the base directory.
func (m *LocalManager) resolvePath(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}

	abs := filepath.Join(m.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(abs, m.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return abs, nil
}

// Bufferize drains an attachment payload into memory.
func (m *LocalManager) Bufferize(file io.Reader) ([]byte, error) {
	return bufferize(file)
}

// Checksum returns the hex SHA-256 content hash used for deduplication.
func (m *LocalManager) Checksum(data []byte) string {
	return checksum(data)
}

// Upload writes the bytes under a content-addressed path and returns the file
// metadata carrying the storage identifiers.
func (m *LocalManager) Upload(ctx context.Context, data []byte, filename, contentType string) (notification.AttachmentFileRecord, error) {
	select {
	case <-ctx.Done():
		return notification.AttachmentFileRecord{}, ctx.Err()
	default:
	}

	sum := checksum(data)
	key := objectKey(m.prefix, sum, filename)

	abs, err := m.resolvePath(key)
	if err != nil {
		return notification.AttachmentFileRecord{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return notification.AttachmentFileRecord{}, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return notification.AttachmentFileRecord{}, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return notification.AttachmentFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    sum,
		StorageIdentifiers: map[string]string{
			"backend": "local",
			"key":     key,
		},
	}, nil
}

// Reconstruct turns persisted storage identifiers back into a readable handle.
func (m *LocalManager) Reconstruct(identifiers map[string]string) (notification.Handle, error) {
	if identifiers["backend"] != "local" {
		return nil, fmt.Errorf("%w: %q", ErrWrongBackend, identifiers["backend"])
	}
	key := identifiers["key"]
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrMissingIdentifier)
	}

	abs, err := m.resolvePath(key)
	if err != nil {
		return nil, err
	}
	return &localHandle{path: abs, url: m.baseURL + key}, nil
}

// DeleteByIdentifiers removes the stored object. A missing object is not an
// error so cleanup can be retried safely.
func (m *LocalManager) DeleteByIdentifiers(ctx context.Context, identifiers map[string]string) error {
	handle, err := m.Reconstruct(identifiers)
	if err != nil {
		return err
	}
	return handle.Delete(ctx)
}

// localHandle exposes one stored object on disk.
type localHandle struct {
	path string
	url  string
}

func (h *localHandle) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, h.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return data, nil
}

func (h *localHandle) Stream(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, h.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return f, nil
}

func (h *localHandle) URL() string {
	return h.url
}

func (h *localHandle) Delete(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFailedToDeleteFile, err)
	}
	return nil
}
