package main

import (
	"os"

	"krait/cmd/krait/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
