package main

import (
	"os"

	"github.com/cristianoliveira/badgesync/cmd"
	"github.com/cristianoliveira/badgesync/internal/logging"
)

func main() {
	err := cmd.Execute()
	if closeErr := appClient.Close(); closeErr != nil {
		logging.Warn("closing backend failed", "error", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}
