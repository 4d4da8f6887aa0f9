package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cache"
	"github.com/mwantia/vfs/v2/cmd"
	"github.com/mwantia/vfs/v2/cmd/builtin"
	"github.com/mwantia/vfs/v2/config"
	"github.com/mwantia/vfs/v2/handler"
	"github.com/mwantia/vfs/v2/log"
	"github.com/mwantia/vfs/v2/mount"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flagSet := pflag.NewFlagSet("vfsctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	configPath := flagSet.StringP("config", "c", os.Getenv("VFS_CONFIG"), "path to the YAML configuration")
	logLevel := flagSet.String("log-level", "", "override the configured log level")
	showHelp := flagSet.BoolP("help", "h", false, "show help")

	center := cmd.NewCommandCenter()

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "vfsctl: %v\n", err)
		return 2
	}
	if *showHelp || flagSet.NArg() == 0 {
		printHelp(flagSet, center)
		if *showHelp {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vfsctl: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := cfg.Logger("vfsctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "vfsctl: %v\n", err)
		return 1
	}

	if err := builtin.InitBuiltin(center, cfg.MountType()); err != nil {
		logger.Error("Failed to setup command center: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := newVirtualFileSystem(cfg, logger)
	if err != nil {
		logger.Error("Failed to setup virtual file system: %v", err)
		return 1
	}
	defer func() {
		if err := v.Close(context.Background()); err != nil {
			logger.Warn("Failed to close virtual file system: %v", err)
		}
	}()

	code, err := center.Execute(ctx, v, flagSet.Arg(0), flagSet.Args()[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flagSet.Arg(0), err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func newVirtualFileSystem(cfg *config.Config, logger *log.Logger) (*vfs.VirtualFileSystem, error) {
	registryOpts, err := cfg.RegistryOptions(logger.Named("mount"))
	if err != nil {
		return nil, err
	}
	registry, err := mount.NewRegistry(registryOpts...)
	if err != nil {
		return nil, err
	}

	opts := []vfs.VirtualFileSystemOption{
		vfs.WithLogger(logger),
		vfs.WithMounts(registry),
		vfs.WithFactory(handler.NewFileFactory()),
		vfs.WithFactory(handler.NewMemoryFactory()),
		vfs.WithFactory(handler.NewSQLiteFactory()),
		vfs.WithFactory(handler.NewPostgresFactory(cfg.Backends.Postgres)),
		vfs.WithFactory(handler.NewConsulFactory(cfg.Backends.Consul)),
		vfs.WithFactory(handler.NewS3Factory(cfg.Backends.S3)),
	}
	if !cfg.Cache.Disabled {
		opts = append(opts, vfs.WithCache(cache.NewPrefixCache()))
	}

	v, err := vfs.New(opts...)
	if err != nil {
		return nil, errors.Join(err, registry.Close(context.Background()))
	}
	return v, nil
}

func printHelp(flagSet *pflag.FlagSet, center *cmd.CommandCenter) {
	if err := builtin.InitBuiltin(center, vfs.MountZip); err != nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Usage: vfsctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr)
	center.PrintHelp(os.Stderr)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}
