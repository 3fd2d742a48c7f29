package main

import (
	"os"

	"github.com/aldan/opschat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
