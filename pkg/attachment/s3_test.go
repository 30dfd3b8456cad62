package attachment_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/attachment"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

// mockAPIError implements smithy.APIError for error classification tests.
type mockAPIError struct {
	code string
}

func (e *mockAPIError) Error() string                 { return e.code }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.code }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func newS3Manager(t *testing.T, client attachment.S3Client) *attachment.S3Manager {
	t.Helper()
	mgr, err := attachment.NewS3Manager(context.Background(), attachment.S3Config{
		Bucket: "test-bucket",
		Region: "us-east-1",
	}, attachment.WithS3Client(client))
	require.NoError(t, err)
	return mgr
}

func TestNewS3Manager(t *testing.T) {
	t.Parallel()

	t.Run("missing bucket is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := attachment.NewS3Manager(context.Background(), attachment.S3Config{Region: "us-east-1"})
		require.ErrorIs(t, err, attachment.ErrInvalidConfig)
	})

	t.Run("missing region is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := attachment.NewS3Manager(context.Background(), attachment.S3Config{Bucket: "b"})
		require.ErrorIs(t, err, attachment.ErrInvalidConfig)
	})
}

func TestS3ManagerUpload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("content addressed key", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		data := []byte("report body")
		sum := mgr.Checksum(data)
		wantKey := "attachments/" + sum[:2] + "/" + sum + ".pdf"

		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "test-bucket" &&
				aws.ToString(in.Key) == wantKey &&
				aws.ToString(in.ContentType) == "application/pdf"
		}), mock.Anything).Return(&s3.PutObjectOutput{}, nil)

		rec, err := mgr.Upload(ctx, data, "report.pdf", "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, sum, rec.Checksum)
		assert.Equal(t, int64(len(data)), rec.Size)
		assert.Equal(t, map[string]string{
			"backend": "s3",
			"bucket":  "test-bucket",
			"key":     wantKey,
		}, rec.StorageIdentifiers)

		client.AssertExpectations(t)
	})

	t.Run("defaults the content type", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.ContentType) == "application/octet-stream"
		}), mock.Anything).Return(&s3.PutObjectOutput{}, nil)

		rec, err := mgr.Upload(ctx, []byte("raw"), "blob", "")
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", rec.ContentType)
	})

	t.Run("classifies access denied", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		client.On("PutObject", ctx, mock.Anything, mock.Anything).
			Return(nil, &mockAPIError{code: "AccessDenied"})

		_, err := mgr.Upload(ctx, []byte("x"), "x.txt", "text/plain")
		require.ErrorIs(t, err, attachment.ErrAccessDenied)
	})
}

func TestS3ManagerHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	identifiers := map[string]string{
		"backend": "s3",
		"bucket":  "test-bucket",
		"key":     "attachments/ab/abcdef.txt",
	}

	t.Run("read", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		client.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Bucket) == "test-bucket" &&
				aws.ToString(in.Key) == "attachments/ab/abcdef.txt"
		}), mock.Anything).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(bytes.NewReader([]byte("stored bytes"))),
		}, nil)

		handle, err := mgr.Reconstruct(identifiers)
		require.NoError(t, err)

		data, err := handle.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("stored bytes"), data)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		client.On("GetObject", ctx, mock.Anything, mock.Anything).
			Return(nil, &mockAPIError{code: "NoSuchKey"})

		handle, err := mgr.Reconstruct(identifiers)
		require.NoError(t, err)

		_, err = handle.Read(ctx)
		require.ErrorIs(t, err, attachment.ErrObjectNotFound)
	})

	t.Run("url uses the default endpoint layout", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		handle, err := mgr.Reconstruct(identifiers)
		require.NoError(t, err)
		assert.Equal(t,
			"https://test-bucket.s3.us-east-1.amazonaws.com/attachments/ab/abcdef.txt",
			handle.URL())
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		mgr := newS3Manager(t, client)

		client.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
			return aws.ToString(in.Key) == "attachments/ab/abcdef.txt"
		}), mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)

		require.NoError(t, mgr.DeleteByIdentifiers(ctx, identifiers))
		client.AssertExpectations(t)
	})
}

func TestS3ManagerReconstructValidation(t *testing.T) {
	t.Parallel()

	mgr := newS3Manager(t, &MockS3Client{})

	t.Run("wrong backend", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.Reconstruct(map[string]string{"backend": "local", "key": "x"})
		require.ErrorIs(t, err, attachment.ErrWrongBackend)
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.Reconstruct(map[string]string{"backend": "s3", "key": "x"})
		require.ErrorIs(t, err, attachment.ErrMissingIdentifier)
	})
}

func TestClassifyContextErrors(t *testing.T) {
	t.Parallel()

	client := &MockS3Client{}
	mgr := newS3Manager(t, client)

	ctx := context.Background()
	client.On("GetObject", ctx, mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded)

	handle, err := mgr.Reconstruct(map[string]string{
		"backend": "s3", "bucket": "b", "key": "k",
	})
	require.NoError(t, err)

	_, err = handle.Read(ctx)
	require.ErrorIs(t, err, attachment.ErrOperationTimeout)
	assert.False(t, errors.Is(err, attachment.ErrObjectNotFound))
}
