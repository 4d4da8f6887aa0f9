package mount

import (
	"fmt"
	"strings"

	"github.com/mwantia/vfs/v2/log"
)

// BackupPolicy decides when the original content of a target is copied.
type BackupPolicy int

const (
	// BackupFirstMount copies a target the first time it is mounted.
	BackupFirstMount BackupPolicy = iota
	// BackupNever disables backups.
	BackupNever
	// BackupEveryMount replaces the backup whenever the target is mounted again.
	BackupEveryMount
)

func (p BackupPolicy) String() string {
	switch p {
	case BackupFirstMount:
		return "first"
	case BackupNever:
		return "never"
	case BackupEveryMount:
		return "every"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

func ParseBackupPolicy(s string) (BackupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return BackupFirstMount, nil
	case "never", "none":
		return BackupNever, nil
	case "every", "always":
		return BackupEveryMount, nil
	default:
		return 0, fmt.Errorf("unknown backup policy: %q", s)
	}
}

type RegistryOptions struct {
	Logger *log.Logger

	// TempDir is the parent of the private directory holding temp copies,
	// expanded archives and backups. Empty means os.TempDir().
	TempDir string

	BackupPolicy      BackupPolicy
	BackupCompression Compression

	Provider ArchiveProvider
}

type RegistryOption func(*RegistryOptions) error

func newDefaultRegistryOptions() *RegistryOptions {
	return &RegistryOptions{
		Logger:            log.Discard(),
		BackupPolicy:      BackupFirstMount,
		BackupCompression: CompressionNone,
	}
}

func WithLogger(logger *log.Logger) RegistryOption {
	return func(opts *RegistryOptions) error {
		if logger != nil {
			opts.Logger = logger
		}
		return nil
	}
}

func WithTempDir(dir string) RegistryOption {
	return func(opts *RegistryOptions) error {
		opts.TempDir = dir
		return nil
	}
}

func WithBackupPolicy(policy BackupPolicy) RegistryOption {
	return func(opts *RegistryOptions) error {
		if policy < BackupFirstMount || policy > BackupEveryMount {
			return fmt.Errorf("unknown backup policy: %d", int(policy))
		}
		opts.BackupPolicy = policy
		return nil
	}
}

func WithBackupCompression(compression Compression) RegistryOption {
	return func(opts *RegistryOptions) error {
		if compression > CompressionZstd {
			return fmt.Errorf("unsupported compression: %d", compression)
		}
		opts.BackupCompression = compression
		return nil
	}
}

// WithArchiveProvider replaces the provider that turns archive leaves into mounted trees.
func WithArchiveProvider(provider ArchiveProvider) RegistryOption {
	return func(opts *RegistryOptions) error {
		if provider == nil {
			return fmt.Errorf("archive provider must not be nil")
		}
		opts.Provider = provider
		return nil
	}
}
