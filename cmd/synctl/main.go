package main

import (
	"os"

	"tradesync/cmd/synctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
