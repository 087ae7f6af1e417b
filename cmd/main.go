package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	cache "github.com/krisalay/kv-cache-server"
	"github.com/krisalay/kv-cache-server/config"
	"github.com/krisalay/kv-cache-server/engine"
	"github.com/krisalay/kv-cache-server/server"
	"github.com/krisalay/kv-cache-server/storage"
	"github.com/krisalay/kv-cache-server/types"
	"github.com/krisalay/kv-cache-server/writepolicy"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// ================= FLAGS =================

// parseFlags loads the config file and applies explicitly set flags on top.
func parseFlags(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("kv-cache-server", flag.ContinueOnError)

	var (
		configPath = fs.String("c", "config.yaml", "path to the YAML config file")
		address    = fs.String("a", "", "listen address, host:port")
		port       = fs.Int("p", 0, "listen port, keeps the host from -a or the config")
		cacheSize  = fs.Int("cache-size", 0, "maximum number of cached entries, 0 disables the cache")
		policy     = fs.String("policy", "", "eviction policy: FIFO, LRU, LFU or None")
		path       = fs.String("storage", "", "path of the storage file")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	var portErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Server.Address = *address
		case "cache-size":
			cfg.Cache.Size = *cacheSize
		case "policy":
			cfg.Cache.Policy = *policy
		case "storage":
			cfg.Storage.Path = *path
		}
	})
	// -p is applied last so "-a host -p port" works in either order
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "p" {
			return
		}
		host, _, err := net.SplitHostPort(cfg.Server.Address)
		if err != nil {
			portErr = fmt.Errorf("%w: address %q: %w", config.ErrInvalid, cfg.Server.Address, err)
			return
		}
		cfg.Server.Address = net.JoinHostPort(host, strconv.Itoa(*port))
	})
	if portErr != nil {
		return nil, portErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ================= MAIN =================

func run(args []string) error {
	cfg, err := parseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting",
		"address", cfg.Server.Address,
		"cache_size", cfg.Cache.Size,
		"policy", cfg.PolicyType(),
		"storage", cfg.Storage.Path,
		"write_mode", cfg.WriteMode(),
	)

	// ---------------- Storage ----------------
	backend := storage.New(cfg.Storage.Path, logger)
	n, err := backend.Load()
	if err != nil {
		return fmt.Errorf("load storage: %w", err)
	}
	logger.Info("storage loaded", "path", backend.Path(), "entries", n)

	// ---------------- Metrics ----------------
	metrics := &types.Counters{}

	// ---------------- Cache Engine ----------------
	eng, err := engine.NewCacheEngine(cfg.Cache.Size, cfg.PolicyType(), metrics)
	if err != nil {
		return err
	}

	// ---------------- Write Policy ----------------
	wp, err := writepolicy.New(cfg.WriteMode(), backend, metrics, logger)
	if err != nil {
		return err
	}

	store := cache.NewStore(backend, eng, wp, logger)

	// ---------------- Server ----------------
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, cfg.ServerConfig(), logger)
	serveErr := srv.ListenAndServe(ctx)

	// ---------------- Shutdown ----------------
	closeErr := store.Close()
	if closeErr != nil {
		logger.Error("final flush failed", "error", closeErr)
	}

	stored, cached := store.Stats()
	snap := metrics.Snapshot()
	logger.Info("shutdown complete",
		"stored", stored,
		"cached", cached,
		"hits", snap.Hits,
		"misses", snap.Misses,
		"evictions", snap.Evictions,
		"persist_failures", snap.PersistFailures,
	)

	return errors.Join(serveErr, closeErr)
}
