package attachment_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/attachment"
)

func TestNewLocalManager(t *testing.T) {
	t.Parallel()

	t.Run("empty base dir is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := attachment.NewLocalManager("", "/files/")
		require.ErrorIs(t, err, attachment.ErrInvalidConfig)
	})

	t.Run("creates the base dir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "storage")
		_, err := attachment.NewLocalManager(dir, "/files/")
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestLocalManagerChecksum(t *testing.T) {
	t.Parallel()

	mgr, err := attachment.NewLocalManager(t.TempDir(), "/files/")
	require.NoError(t, err)

	data := []byte("attachment content")
	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), mgr.Checksum(data))

	buffered, err := mgr.Bufferize(strings.NewReader("attachment content"))
	require.NoError(t, err)
	assert.Equal(t, data, buffered)
}

func TestLocalManagerRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr, err := attachment.NewLocalManager(t.TempDir(), "/files/")
	require.NoError(t, err)

	data := []byte("%PDF-1.4 fake invoice")
	rec, err := mgr.Upload(ctx, data, "invoice.pdf", "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "invoice.pdf", rec.Filename)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.Equal(t, int64(len(data)), rec.Size)
	assert.Equal(t, mgr.Checksum(data), rec.Checksum)
	assert.Equal(t, "local", rec.StorageIdentifiers["backend"])

	// Content-addressed layout: prefix / first two checksum chars / checksum.ext
	key := rec.StorageIdentifiers["key"]
	assert.Equal(t, "attachments/"+rec.Checksum[:2]+"/"+rec.Checksum+".pdf", key)

	handle, err := mgr.Reconstruct(rec.StorageIdentifiers)
	require.NoError(t, err)

	got, err := handle.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	stream, err := handle.Stream(ctx)
	require.NoError(t, err)
	streamed, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, data, streamed)

	assert.Equal(t, "/files/"+key, handle.URL())
}

func TestLocalManagerSameContentSameLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr, err := attachment.NewLocalManager(t.TempDir(), "/files/")
	require.NoError(t, err)

	first, err := mgr.Upload(ctx, []byte("same"), "a.txt", "text/plain")
	require.NoError(t, err)
	second, err := mgr.Upload(ctx, []byte("same"), "b.txt", "text/plain")
	require.NoError(t, err)

	assert.Equal(t, first.StorageIdentifiers["key"], second.StorageIdentifiers["key"])
}

func TestLocalManagerDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr, err := attachment.NewLocalManager(t.TempDir(), "/files/")
	require.NoError(t, err)

	rec, err := mgr.Upload(ctx, []byte("bytes"), "f.bin", "")
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteByIdentifiers(ctx, rec.StorageIdentifiers))

	handle, err := mgr.Reconstruct(rec.StorageIdentifiers)
	require.NoError(t, err)
	_, err = handle.Read(ctx)
	require.ErrorIs(t, err, attachment.ErrObjectNotFound)

	// Deleting again is a no-op.
	require.NoError(t, mgr.DeleteByIdentifiers(ctx, rec.StorageIdentifiers))
}

func TestLocalManagerReconstructValidation(t *testing.T) {
	t.Parallel()

	mgr, err := attachment.NewLocalManager(t.TempDir(), "/files/")
	require.NoError(t, err)

	t.Run("wrong backend", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.Reconstruct(map[string]string{"backend": "s3", "key": "x"})
		require.ErrorIs(t, err, attachment.ErrWrongBackend)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.Reconstruct(map[string]string{"backend": "local"})
		require.ErrorIs(t, err, attachment.ErrMissingIdentifier)
	})

	t.Run("path traversal", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.Reconstruct(map[string]string{"backend": "local", "key": "../../etc/passwd"})
		require.ErrorIs(t, err, attachment.ErrInvalidPath)
	})
}
