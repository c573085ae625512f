package main

import (
	"os"

	"github.com/meow-io/go-hush/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
