package main

import (
	"os"

	"github.com/polaris-class/clubhouse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
