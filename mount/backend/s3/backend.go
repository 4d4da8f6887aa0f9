package s3

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
)

// S3Backend serves a tree from an S3-compatible bucket.
// Directories are key prefixes; MkdirAll stores zero-byte 'name/' markers.
type S3Backend struct {
	mu sync.RWMutex

	client     *minio.Client
	bucketName string
	prefix     string
	readOnly   bool
	created    time.Time
}

// S3BackendConfig contains configuration options for the S3 backend
type S3BackendConfig struct {
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl"`
	// Prefix limits the tree to the keys below it (optional)
	Prefix   string `yaml:"prefix"`
	ReadOnly bool   `yaml:"read_only"`
}

func NewS3Backend(config S3BackendConfig) (*S3Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket name is required", data.ErrInvalid)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(config.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Backend{
		client:     client,
		bucketName: config.Bucket,
		prefix:     prefix,
		readOnly:   config.ReadOnly,
		created:    time.Now(),
	}, nil
}

// Returns the identifier name defined for this backend
func (*S3Backend) Name() string {
	return "s3"
}

// Open verifies that the bucket exists.
func (sb *S3Backend) Open(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	exists, err := sb.client.BucketExists(ctx, sb.bucketName)
	if err != nil {
		return err
	}

	if !exists {
		return data.MountFailed(data.ErrNotExist, sb.bucketName)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (sb *S3Backend) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (sb *S3Backend) GetCapabilities() *backend.BackendCapabilities {
	caps := []backend.BackendCapability{
		backend.CapabilityRead,
		backend.CapabilityModifyTime,
	}
	if !sb.readOnly {
		caps = append(caps, backend.CapabilityWrite, backend.CapabilityDelete)
	}

	return &backend.BackendCapabilities{
		Capabilities: caps,
		// Single PUT limit of S3
		MaxObjectSize: 5 << 30,
	}
}

func (sb *S3Backend) IsReadOnly() bool {
	return sb.readOnly
}

func (sb *S3Backend) objectKey(key string) string {
	return sb.prefix + key
}

// dirPrefix returns the prefix shared by all objects below key.
func (sb *S3Backend) dirPrefix(key string) string {
	if key == "" {
		return sb.prefix
	}
	return sb.prefix + key + "/"
}
