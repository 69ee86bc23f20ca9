package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/banshee-data/footscan/internal/scan/session"
	"github.com/banshee-data/footscan/internal/scan/transport"
)

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	addr := fs.String("addr", "", "Query a running service at this gRPC address instead of the local source")
	timeout := fs.Duration("timeout", 5*time.Second, "Probe timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var capability session.Capability
	if *addr != "" {
		c, err := transport.Dial(*addr)
		if err != nil {
			return err
		}
		defer c.Close()
		if capability, err = c.Capabilities(ctx); err != nil {
			return err
		}
	} else {
		capability = session.Probe(ctx, session.NewSynthetic(session.DefaultSyntheticConfig(), nil))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(capability)
}
