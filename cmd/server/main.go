// Command vind runs the Vind API server and its maintenance tasks.
//
//	vind                  start the HTTP server (same as "vind serve")
//	vind migrate-users    convert legacy follower counts and repair follow edges
//	vind seed             load the demo accounts and videos
//
// Configuration comes from the environment and an optional .env file; see
// internal/config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vind:", err)
		os.Exit(1)
	}
}
