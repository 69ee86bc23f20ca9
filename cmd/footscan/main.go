// Command footscan runs the foot-scan capture service and its tooling.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/footscan/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "serve":
		err = runServe(args)
	case "probe":
		err = runProbe(args)
	case "watch":
		err = runWatch(args)
	case "migrate":
		err = runMigrate(args)
	case "report":
		err = runReport(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "footscan %s: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`footscan - depth-to-point-cloud foot scanning service

Usage: footscan <command> [options]

Commands:
  serve      Run the scan service (gRPC + debug HTTP)
  probe      Report depth capability of the capture source
  watch      Connect to a running service and print streamed frames
  migrate    Manage the session database schema (up, down, status, force N)
  report     Render PNG plots of a recorded session
  version    Show build information
  help       Show this help message

Run 'footscan <command> -h' for command flags.`)
}
