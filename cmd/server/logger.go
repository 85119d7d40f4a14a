package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMegabytes = 10
	logFileMaxBackups       = 5
	logFileMaxAgeDays       = 28
	logDirectoryPermissions = 0o755
)

// newLogger builds the production logger and, when logFilePath is set, tees entries into a rotated file.
func newLogger(logFilePath string) (*zap.Logger, error) {
	if logFilePath == "" {
		return zap.NewProduction()
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(logFilePath), logDirectoryPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("create log directory: %w", mkdirErr)
	}

	rotatingWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    logFileMaxSizeMegabytes,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(encoder.Clone(), zapcore.AddSync(rotatingWriter), level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
