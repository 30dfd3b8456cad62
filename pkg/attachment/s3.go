package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// S3Client defines the interface for S3 operations used by S3Manager.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Manager stores attachment content in Amazon S3 or an S3-compatible
// service. It is safe for concurrent use.
type S3Manager struct {
	client        S3Client
	bucket        string
	prefix        string
	baseURL       string
	uploadTimeout time.Duration
}

// S3Config contains configuration for S3 attachment storage.
type S3Config struct {
	Bucket         string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // Optional: for S3-compatible services
	BaseURL        string // Public URL base for serving files
	KeyPrefix      string // Object key prefix, default "attachments"
	ForcePathStyle bool   // For S3-compatible services like MinIO
}

// S3Option defines a function that configures S3Manager.
type S3Option func(*s3Options)

type s3Options struct {
	httpClient      *http.Client
	s3Client        S3Client
	s3ConfigOptions []func(*awsconfig.LoadOptions) error
	s3ClientOptions []func(*s3.Options)
	uploadTimeout   time.Duration
}

// WithS3Client sets a custom pre-configured S3 client.
// Useful for testing with mocks.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.s3Client = client
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) {
		o.httpClient = client
	}
}

// WithS3ConfigOption adds a custom AWS config option.
func WithS3ConfigOption(option func(*awsconfig.LoadOptions) error) S3Option {
	return func(o *s3Options) {
		o.s3ConfigOptions = append(o.s3ConfigOptions, option)
	}
}

// WithS3ClientOption adds a custom S3 client option.
func WithS3ClientOption(option func(*s3.Options)) S3Option {
	return func(o *s3Options) {
		o.s3ClientOptions = append(o.s3ClientOptions, option)
	}
}

// WithS3UploadTimeout sets the timeout for upload operations.
// If not set, no timeout is applied (context deadline from caller is used).
func WithS3UploadTimeout(timeout time.Duration) S3Option {
	return func(o *s3Options) {
		o.uploadTimeout = timeout
	}
}

// NewS3Manager creates a new S3-backed attachment manager.
func NewS3Manager(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Manager, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	var client S3Client
	if options.s3Client != nil {
		client = options.s3Client
	} else {
		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}

		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}

		if options.httpClient != nil {
			awsOptions = append(awsOptions, awsconfig.WithHTTPClient(options.httpClient))
		}

		awsOptions = append(awsOptions, options.s3ConfigOptions...)

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
		}

		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle

			for _, opt := range options.s3ClientOptions {
				opt(o)
			}
		})
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "attachments"
	}

	return &S3Manager{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(prefix, "/"),
		baseURL:       baseURL,
		uploadTimeout: options.uploadTimeout,
	}, nil
}

// classifyS3Error converts S3 errors to domain-specific errors.
func classifyS3Error(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s operation", ErrOperationTimeout, operation)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s operation", ErrOperationCanceled, operation)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); code {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrObjectNotFound, err)
		case "AccessDenied":
			return fmt.Errorf("%w: %s operation", ErrAccessDenied, operation)
		case "SlowDown", "ServiceUnavailable":
			return fmt.Errorf("%w: %s operation", ErrServiceUnavailable, operation)
		default:
			return fmt.Errorf("%s operation failed (code: %s): %w", operation, code, err)
		}
	}

	return fmt.Errorf("%s operation failed: %w", operation, err)
}

// Bufferize drains an attachment payload into memory.
func (m *S3Manager) Bufferize(file io.Reader) ([]byte, error) {
	return bufferize(file)
}

// Checksum returns the hex SHA-256 content hash used for deduplication.
func (m *S3Manager) Checksum(data []byte) string {
	return checksum(data)
}

// Upload stores the bytes under a content-addressed key and returns the file
// metadata carrying the storage identifiers.
func (m *S3Manager) Upload(ctx context.Context, data []byte, filename, contentType string) (notification.AttachmentFileRecord, error) {
	if m.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.uploadTimeout)
		defer cancel()
	}

	sum := checksum(data)
	key := objectKey(m.prefix, sum, filename)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return notification.AttachmentFileRecord{}, classifyS3Error(err, "upload attachment")
	}

	return notification.AttachmentFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    sum,
		StorageIdentifiers: map[string]string{
			"backend": "s3",
			"bucket":  m.bucket,
			"key":     key,
		},
	}, nil
}

// Reconstruct turns persisted storage identifiers back into a readable handle.
func (m *S3Manager) Reconstruct(identifiers map[string]string) (notification.Handle, error) {
	if identifiers["backend"] != "s3" {
		return nil, fmt.Errorf("%w: %q", ErrWrongBackend, identifiers["backend"])
	}
	bucket, key := identifiers["bucket"], identifiers["key"]
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", ErrMissingIdentifier)
	}
	return &s3Handle{
		client: m.client,
		bucket: bucket,
		key:    key,
		url:    m.baseURL + key,
	}, nil
}

// DeleteByIdentifiers removes the stored object. S3 delete is idempotent, so a
// missing object is not an error.
func (m *S3Manager) DeleteByIdentifiers(ctx context.Context, identifiers map[string]string) error {
	handle, err := m.Reconstruct(identifiers)
	if err != nil {
		return err
	}
	return handle.Delete(ctx)
}

// s3Handle exposes one stored object.
type s3Handle struct {
	client S3Client
	bucket string
	key    string
	url    string
}

func (h *s3Handle) Read(ctx context.Context) ([]byte, error) {
	rc, err := h.Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return data, nil
}

func (h *s3Handle) Stream(ctx context.Context) (io.ReadCloser, error) {
	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key),
	})
	if err != nil {
		return nil, classifyS3Error(err, "read attachment")
	}
	return out.Body, nil
}

func (h *s3Handle) URL() string {
	return h.url
}

func (h *s3Handle) Delete(ctx context.Context) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key),
	})
	if err != nil {
		return classifyS3Error(err, "delete attachment")
	}
	return nil
}
