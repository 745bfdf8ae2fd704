package main

import (
	"os"

	"github.com/sandrolain/goshape/cmd/goshape/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
