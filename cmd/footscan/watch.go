package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/footscan/internal/scan/pointbuf"
	"github.com/banshee-data/footscan/internal/scan/transport"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:50051", "Service gRPC address")
	start := fs.Bool("start", false, "Send StartScan before watching and StopScan on exit")
	duration := fs.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	previews := fs.Bool("preview", false, "Watch preview JPEGs instead of point clouds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	c, err := transport.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if *start {
		if err := c.StartScan(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.StopScan(stopCtx); err != nil {
				fmt.Fprintf(os.Stderr, "stop scan: %v\n", err)
			}
		}()
	}

	return watchStream(ctx, c, *previews, os.Stdout)
}

// watchStream prints one line per received message until ctx ends.
func watchStream(ctx context.Context, c *transport.Client, previews bool, out io.Writer) error {
	var n int
	began := time.Now()
	var err error
	if previews {
		err = c.StreamPreview(ctx, func(b []byte) error {
			n++
			fmt.Fprintf(out, "preview %d: %d bytes\n", n, len(b))
			return nil
		})
	} else {
		err = c.StreamPoints(ctx, func(b []byte) error {
			n++
			count, cerr := pointbuf.Count(b)
			if cerr != nil {
				return cerr
			}
			fmt.Fprintf(out, "cloud %d: %d points (%d bytes)\n", n, count, len(b))
			return nil
		})
	}
	if elapsed := time.Since(began).Seconds(); elapsed > 0 {
		fmt.Fprintf(out, "%d messages in %.1fs (%.1f/s)\n", n, elapsed, float64(n)/elapsed)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return nil
	}
	return err
}
