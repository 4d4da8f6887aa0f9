package vfs

import (
	"github.com/mwantia/vfs/v2/log"
)

type VirtualFileSystemOptions struct {
	Logger     *log.Logger
	Factories  []ContextFactory
	Cache      Cache
	MountTable MountTable
}

type VirtualFileSystemOption func(*VirtualFileSystemOptions) error

func newDefaultVirtualFileSystemOptions() *VirtualFileSystemOptions {
	return &VirtualFileSystemOptions{
		Logger: log.Discard(),
	}
}

func WithLogger(logger *log.Logger) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		if logger != nil {
			opts.Logger = logger
		}
		return nil
	}
}

// WithFactory registers a context factory for all of its schemes.
func WithFactory(factory ContextFactory) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.Factories = append(opts.Factories, factory)
		return nil
	}
}

func WithCache(cache Cache) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.Cache = cache
		return nil
	}
}

// WithMounts sets the mount table handed to every context the manager creates.
func WithMounts(mt MountTable) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.MountTable = mt
		return nil
	}
}
