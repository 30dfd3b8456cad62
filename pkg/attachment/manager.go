package attachment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
)

// bufferize drains a payload into memory. Attachment content must be buffered
// before upload because the checksum is computed ahead of any storage write.
func bufferize(file io.Reader) ([]byte, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return data, nil
}

// checksum returns the hex SHA-256 of the content. This is the deduplication
// key shared with the metadata store, so it must stay stable across releases.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// objectKey builds the content-addressed location for a checksum. The two-char
// fan-out keeps any single prefix from accumulating millions of objects.
func objectKey(prefix, sum, filename string) string {
	return path.Join(prefix, sum[:2], sum+path.Ext(filename))
}
