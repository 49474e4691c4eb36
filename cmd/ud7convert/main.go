package main

import (
	"fmt"
	"os"

	"github.com/ud7-tracker/backend/internal/cli"
	"github.com/ud7-tracker/backend/internal/logger"
)

// Version is set during build.
var Version = "dev"

func main() {
	err := cli.NewRootCmd(Version).Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
