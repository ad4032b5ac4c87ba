// Package main provides marquectl, the admin CLI that works directly on the
// Marquee database.
package main

import (
	"os"

	"github.com/aussiebroadwan/marquee/cmd/marquectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
