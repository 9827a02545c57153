package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

// GetCheckCommand возвращает команду проверки работающего сервиса
func GetCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check health of a running gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Value: "http://localhost:8080/health",
				Usage: "Health endpoint URL",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "Request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			client := &http.Client{Timeout: c.Duration("timeout")}

			resp, err := client.Get(c.String("url"))
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("invalid health response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("service unhealthy: %d %v", resp.StatusCode, body)
			}

			fmt.Printf("Service is healthy: %v\n", body)
			return nil
		},
	}
}
