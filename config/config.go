// Package config loads the YAML configuration of vfsctl.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/handler"
	"github.com/mwantia/vfs/v2/log"
	"github.com/mwantia/vfs/v2/mount"
	"github.com/mwantia/vfs/v2/mount/backend/consul"
	"github.com/mwantia/vfs/v2/mount/backend/s3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	TempDir  string         `yaml:"temp_dir" env:"VFS_TEMP_DIR"`
	Mount    MountConfig    `yaml:"mount"`
	Cache    CacheConfig    `yaml:"cache"`
	Backends BackendsConfig `yaml:"backends"`
}

type LogConfig struct {
	Level   string `yaml:"level" env:"VFS_LOG_LEVEL" env-default:"info"`
	File    string `yaml:"file" env:"VFS_LOG_FILE"`
	JSON    bool   `yaml:"json" env:"VFS_LOG_JSON"`
	NoColor bool   `yaml:"no_color" env:"NO_COLOR"`
}

type MountConfig struct {
	Type              string `yaml:"type" env:"VFS_MOUNT_TYPE" env-default:"zip"`
	BackupPolicy      string `yaml:"backup_policy" env:"VFS_BACKUP_POLICY" env-default:"first"`
	BackupCompression string `yaml:"backup_compression" env:"VFS_BACKUP_COMPRESSION" env-default:"none"`
}

type CacheConfig struct {
	// Disabled turns off the prefix cache; contexts are then found by a linear scan
	Disabled bool `yaml:"disabled" env:"VFS_CACHE_DISABLED"`
}

type BackendsConfig struct {
	Consul   consul.ConsulBackendConfig `yaml:"consul"`
	S3       s3.S3BackendConfig         `yaml:"s3"`
	Postgres handler.PostgresDefaults   `yaml:"postgres"`
}

// Load reads path and applies environment overrides. Without a path only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read environment: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is like Load but panics on failure.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Logger builds the root logger described by the log section.
func (c *Config) Logger(name string) (*log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	return log.New(name, level,
		log.WithFile(c.Log.File),
		log.WithJSON(c.Log.JSON),
		log.WithNoColor(c.Log.NoColor)), nil
}

func (c *Config) MountType() vfs.MountType {
	return vfs.ParseMountType(c.Mount.Type)
}

// RegistryOptions translates the mount section into registry options.
func (c *Config) RegistryOptions(logger *log.Logger) ([]mount.RegistryOption, error) {
	policy, err := mount.ParseBackupPolicy(c.Mount.BackupPolicy)
	if err != nil {
		return nil, err
	}
	compression, err := mount.ParseCompression(c.Mount.BackupCompression)
	if err != nil {
		return nil, err
	}

	return []mount.RegistryOption{
		mount.WithLogger(logger),
		mount.WithTempDir(c.TempDir),
		mount.WithBackupPolicy(policy),
		mount.WithBackupCompression(compression),
	}, nil
}
