package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the application logger is constructed. Populated from
// the environment by caarlos0/env the same way every other *Config struct in
// this codebase is.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	DevMode   bool   `env:"LOG_DEV_MODE" envDefault:"false"`
}

// Logger is the structured logging surface used throughout the engine:
// reconcilers, executors, the scheduler, and the event publisher all log
// through this interface rather than touching zap directly.
type Logger interface {
	InitLogger()
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Logger() *zap.Logger
}

type appLogger struct {
	cfg *Config
	z   *zap.SugaredLogger
	raw *zap.Logger
}

// NewAppLogger builds a Logger bound to cfg. Call InitLogger before first use.
func NewAppLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = &Config{LogLevel: "info", LogFormat: "json"}
	}
	return &appLogger{cfg: cfg}
}

func (a *appLogger) InitLogger() {
	level := zapcore.InfoLevel
	if err := level.Set(a.cfg.LogLevel); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if a.cfg.DevMode {
		zapCfg = zap.NewDevelopmentConfig()
	} else if a.cfg.LogFormat == "console" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Encoding = "console"
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		z = zap.NewNop()
	}
	a.raw = z
	a.z = z.Sugar()
}

func (a *appLogger) ensure() {
	if a.z == nil {
		a.InitLogger()
	}
}

func (a *appLogger) Debugf(template string, args ...interface{}) {
	a.ensure()
	a.z.Debugf(template, args...)
}

func (a *appLogger) Info(args ...interface{}) {
	a.ensure()
	a.z.Info(args...)
}

func (a *appLogger) Infof(template string, args ...interface{}) {
	a.ensure()
	a.z.Infof(template, args...)
}

func (a *appLogger) Warn(args ...interface{}) {
	a.ensure()
	a.z.Warn(args...)
}

func (a *appLogger) Warnf(template string, args ...interface{}) {
	a.ensure()
	a.z.Warnf(template, args...)
}

func (a *appLogger) Error(args ...interface{}) {
	a.ensure()
	a.z.Error(args...)
}

func (a *appLogger) Errorf(template string, args ...interface{}) {
	a.ensure()
	a.z.Errorf(template, args...)
}

func (a *appLogger) Logger() *zap.Logger {
	a.ensure()
	return a.raw
}
