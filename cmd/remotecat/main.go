// Command remotecat reads byte ranges of remote files through a remotefs
// chunk cache.
//
// Usage:
//
//	remotecat [flags] cat <path> [--from N] [--to M]
//	remotecat [flags] stat <path>...
//
// Paths are relative to --root. The backend is chosen with --backend:
//
//	http   - root is a base URL, files are fetched with Range requests
//	s3     - files are objects of --bucket under root as key prefix
//	local  - root is a local directory
//
// Settings can also be read from a YAML file given with --config; flags
// given on the command line take precedence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
