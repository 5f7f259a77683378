// Package logger builds the zap loggers shared by the service and gorm.
package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a console logger at the given level ("debug", "info", ...).
func New(level string) (*zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05Z0700"))
	}
	config.Level.SetLevel(logLevel)

	return config.Build()
}

// Gorm adapts log to gorm's logger interface. SQL statements are traced at
// Info only when the zap level is debug.
func Gorm(log *zap.Logger) gormlogger.Interface {
	level := gormlogger.Warn
	if log.Core().Enabled(zapcore.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
