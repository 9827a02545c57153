package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"ingest-gateway/internal/app/commands"
)

func main() {
	cliApp := &cli.App{
		Name:           "ingest-gateway",
		Usage:          "HTTP gateway for video frame ingest",
		Commands:       commands.GetCommands(),
		DefaultCommand: "server",
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
