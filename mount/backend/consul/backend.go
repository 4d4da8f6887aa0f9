package consul

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/vfs/v2/mount/backend"
)

// ConsulBackend serves a tree from the HashiCorp Consul KV store.
//
// - Files are stored directly as KV pairs with their key as the path
// - Directories are implicit prefixes; MkdirAll stores a 'name/' folder key
// - The modify time of an entry is kept in the Flags field as Unix nanoseconds
//
// Limitations:
// - Consul KV has a 512KB limit per value
// - Best suited for configuration files, small assets, and metadata storage
type ConsulBackend struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	created time.Time
	last    time.Time

	// Configuration
	config *ConsulBackendConfig
}

// ConsulBackendConfig contains configuration options for the Consul backend
type ConsulBackendConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string `yaml:"address" env:"CONSUL_HTTP_ADDR"`

	// Token for Consul ACL authentication (optional)
	Token string `yaml:"token" env:"CONSUL_HTTP_TOKEN"`

	// Datacenter to use (optional)
	Datacenter string `yaml:"datacenter"`

	// Namespace for Consul Enterprise (optional)
	Namespace string `yaml:"namespace"`

	// Prefix for all keys in Consul KV (default: "/")
	// This allows serving a subtree of the store
	Prefix string `yaml:"prefix"`
}

// NewConsulBackend creates a new Consul-backed tree
func NewConsulBackend(config *ConsulBackendConfig) (*ConsulBackend, error) {
	if config == nil {
		config = &ConsulBackendConfig{}
	}
	copied := *config
	config = &copied

	// Set defaults
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	if config.Prefix == "" {
		config.Prefix = "/"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}
	if config.Namespace != "" {
		clientConfig.Namespace = config.Namespace
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulBackend{
		client:  client,
		kv:      client.KV(),
		created: time.Now(),
		config:  config,
	}, nil
}

// Name returns the identifier name defined for this backend
func (*ConsulBackend) Name() string {
	return "consul"
}

// Open verifies that the cluster has an elected leader
func (cb *ConsulBackend) Open(ctx context.Context) error {
	leader, err := cb.client.Status().Leader()
	if err != nil {
		return fmt.Errorf("failed to reach consul at '%s': %w", cb.config.Address, err)
	}
	if leader == "" {
		return fmt.Errorf("consul at '%s' has no leader", cb.config.Address)
	}
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend
func (cb *ConsulBackend) Close(ctx context.Context) error {
	// Nothing to clean up - Consul client is stateless
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend
func (cb *ConsulBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityRead,
			backend.CapabilityWrite,
			backend.CapabilityDelete,
			backend.CapabilityModifyTime,
		},
		// Consul KV has a default limit of 512KB per value
		MaxObjectSize: 512 * 1024,
	}
}

func (cb *ConsulBackend) IsReadOnly() bool {
	return false
}

// buildKey constructs the full Consul KV key from the object key
func (cb *ConsulBackend) buildKey(key string) string {
	key = strings.TrimPrefix(key, "/")

	// Handle "/" prefix specially - it means no prefix, just use the key
	if cb.config.Prefix == "/" {
		return key
	}

	prefix := strings.Trim(cb.config.Prefix, "/")
	if key == "" {
		return prefix
	}
	return prefix + "/" + key
}

// dirPrefix returns the prefix shared by all keys below key.
func (cb *ConsulBackend) dirPrefix(key string) string {
	full := cb.buildKey(key)
	if full == "" {
		return ""
	}
	return full + "/"
}

// Purge removes every key below the configured prefix.
func (cb *ConsulBackend) Purge(ctx context.Context) error {
	if cb.config.Prefix == "/" {
		return fmt.Errorf("refusing to purge the whole consul kv store")
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	_, err := cb.kv.DeleteTree(cb.dirPrefix(""), (&api.WriteOptions{}).WithContext(ctx))
	return err
}
