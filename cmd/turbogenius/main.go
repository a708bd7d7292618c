// Command turbogenius runs the streaming chat gateway.
package main

import (
	"os"

	"github.com/harun/turbogenius/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
