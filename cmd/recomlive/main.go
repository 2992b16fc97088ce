// Command recomlive runs the live recommendation server and its tooling.
package main

import "github.com/IvanBrykalov/recomlive/internal/cli"

// version is set via ldflags at build time
var version = "dev"

func main() {
	cli.Execute(version)
}
