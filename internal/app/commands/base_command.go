package commands

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ingest-gateway/internal/config"
)

// CommandContext содержит общий контекст для всех команд
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
}

// NewCommandContext создает новый контекст команды. Флаги командной
// строки имеют приоритет над значениями из файла конфигурации.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		cfg = config.GetDefaultConfig()
	}

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg.Logging.Level, c.Bool("debug"))
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Logger: logger,
		Config: cfg,
	}, nil
}

// createLogger создает логгер
func createLogger(level string, debug bool) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	if debug {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)

	return zapConfig.Build()
}
