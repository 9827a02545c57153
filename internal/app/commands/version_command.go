package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Заполняются при сборке через -ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// GetVersionCommand возвращает команду версии
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("Ingest Gateway\n")
			fmt.Printf("Version:    %s\n", Version)
			fmt.Printf("Commit:     %s\n", Commit)
			fmt.Printf("Build Date: %s\n", BuildDate)
			return nil
		},
	}
}
