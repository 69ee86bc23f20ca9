package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/footscan/internal/store"
)

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Session database path (default from config)")
	configPath := fs.String("config", "", "Scan config JSON")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	outDir := fs.String("out", "reports", "Output directory for PNGs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dbPath
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		path = cfg.GetDBPath()
	}

	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := db.RenderReport(*sessionID, *outDir)
	if err != nil {
		return err
	}
	fmt.Println(files.Latency)
	fmt.Println(files.Points)
	return nil
}
