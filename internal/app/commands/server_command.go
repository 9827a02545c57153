package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"ingest-gateway/internal/app"
)

// GetServerCommand возвращает команду для запуска сервера
func GetServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Start ingest gateway server",
		Description: `Start the video ingest gateway.

Examples:
  ingest-gateway server --port 8080
  ingest-gateway server --store redis --debug
  ingest-gateway server --port 443 --tls --cert server.crt --key server.key`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config/config.yaml",
				Usage:   "Path to config file",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "Server port",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: "0.0.0.0",
				Usage: "Server host",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Stream store backend: memory or redis",
			},
			&cli.BoolFlag{
				Name:  "tls",
				Usage: "Enable TLS",
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "TLS certificate file",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "TLS key file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug mode",
			},
		},
		Action: func(c *cli.Context) error {
			cmdCtx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer cmdCtx.Logger.Sync()

			if c.Bool("tls") {
				cert := c.String("cert")
				key := c.String("key")
				if cert == "" || key == "" {
					return fmt.Errorf("both --cert and --key are required for TLS")
				}
				cmdCtx.Config.TLS.Cert = cert
				cmdCtx.Config.TLS.Key = key
			}

			cmdCtx.Logger.Info("Starting ingest gateway",
				zap.String("host", cmdCtx.Config.Host),
				zap.Int("port", cmdCtx.Config.Port),
				zap.String("store", cmdCtx.Config.Store),
				zap.Bool("tls", c.Bool("tls")))

			application, err := app.NewApplication(cmdCtx.Config, cmdCtx.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}
}
