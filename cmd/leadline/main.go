package main

import (
	"fmt"
	"os"

	app "github.com/valter-silva-au/leadline/internal"
	"github.com/valter-silva-au/leadline/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	// Logs go to stderr so stdout stays clean for command output and the
	// MCP stdio transport.
	a, err := app.NewApp(basePath, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing leadline: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	if cerr := a.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
