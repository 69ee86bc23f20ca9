package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/banshee-data/footscan/internal/config"
	"github.com/banshee-data/footscan/internal/store"
)

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Session database path (default from config)")
	configPath := fs.String("config", "", "Scan config JSON")
	fs.Usage = printMigrateHelp
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		printMigrateHelp()
		return fmt.Errorf("missing migrate action")
	}

	path := *dbPath
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		path = cfg.GetDBPath()
	}

	// Schema is left alone until the action runs.
	db, err := store.OpenRaw(path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
		return printMigrateStatus(db)
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
		return printMigrateStatus(db)
	case "status":
		return printMigrateStatus(db)
	case "force":
		if fs.NArg() < 2 {
			return fmt.Errorf("usage: footscan migrate force <version>")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", fs.Arg(1), err)
		}
		if err := db.MigrateForce(v); err != nil {
			return err
		}
		return printMigrateStatus(db)
	case "help":
		printMigrateHelp()
		return nil
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printMigrateStatus(db *store.DB) error {
	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "DIRTY"
	}
	fmt.Printf("%s: schema version %d (%s)\n", db.Path(), v, state)
	return nil
}

func printMigrateHelp() {
	fmt.Println(`Database Migration Commands

Usage: footscan migrate [-db path] <command>

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration version
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

The database path defaults to dbPath from ` + config.DefaultConfigPath + `.`)
}
