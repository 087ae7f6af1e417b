package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/krisalay/kv-cache-server/client"
	"golang.org/x/sync/errgroup"
)

// ================= BENCHMARK =================

type options struct {
	addr      string
	clients   int
	opsPer    int
	keys      int
	readRatio float64
	valueSize int
}

type counters struct {
	puts    atomic.Int64
	gets    atomic.Int64
	found   atomic.Int64
	missing atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:50005", "server address")
	flag.IntVar(&opts.clients, "clients", 50, "concurrent connections")
	flag.IntVar(&opts.opsPer, "ops", 1000, "operations per connection")
	flag.IntVar(&opts.keys, "keys", 1000, "size of the key space")
	flag.Float64Var(&opts.readRatio, "read-ratio", 0.8, "fraction of operations that are GETs")
	flag.IntVar(&opts.valueSize, "value-size", 32, "bytes per value")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "benchmark failed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.clients <= 0 || opts.opsPer <= 0 || opts.keys <= 0 || opts.valueSize <= 0 {
		return fmt.Errorf("clients, ops, keys and value-size must be positive")
	}

	fmt.Println("\n================ KV SERVER LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Address      :", opts.addr)
	fmt.Println("Clients      :", opts.clients)
	fmt.Println("Ops/Client   :", opts.opsPer)
	fmt.Println("Key Space    :", opts.keys)
	fmt.Println("Read Ratio   :", opts.readRatio)
	fmt.Println("Value Size   :", opts.valueSize)
	fmt.Println("---------------------------------")

	value := strings.Repeat("v", opts.valueSize)

	// ---------------- Preload ----------------
	fmt.Println("Preloading keys...")
	pre, err := client.Dial(ctx, opts.addr)
	if err != nil {
		return err
	}
	for i := 0; i < opts.keys; i++ {
		if _, err := pre.Put(ctx, key(i), value); err != nil {
			pre.Close()
			return fmt.Errorf("preload: %w", err)
		}
	}
	pre.Close()
	fmt.Println("Preload complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	var c counters
	g, ctx := errgroup.WithContext(ctx)

	start := time.Now()
	for i := 0; i < opts.clients; i++ {
		g.Go(func() error {
			return worker(ctx, opts, value, &c)
		})
	}
	err = g.Wait()
	duration := time.Since(start)

	totalOps := c.puts.Load() + c.gets.Load()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("PUTs             : %d\n", c.puts.Load())
	fmt.Printf("GETs             : %d (found %d, missing %d)\n", c.gets.Load(), c.found.Load(), c.missing.Load())
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Println("=========================================")

	return err
}

func worker(ctx context.Context, opts options, value string, c *counters) error {
	conn, err := client.Dial(ctx, opts.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	for j := 0; j < opts.opsPer; j++ {
		k := key(rand.IntN(opts.keys))

		if rand.Float64() < opts.readRatio {
			_, ok, err := conn.Get(ctx, k)
			if err != nil {
				return err
			}
			c.gets.Add(1)
			if ok {
				c.found.Add(1)
			} else {
				c.missing.Add(1)
			}
			continue
		}

		if _, err := conn.Put(ctx, k, value); err != nil {
			return err
		}
		c.puts.Add(1)
	}
	return nil
}

func key(i int) string {
	return fmt.Sprintf("key-%d", i)
}
