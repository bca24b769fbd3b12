// Package main is the single-binary entrypoint for breathe.
package main

import "github.com/tutu-network/breathe/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
