package main

import (
	"os"

	"github.com/rustyeddy/gateway/cmd/gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
