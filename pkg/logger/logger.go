// Package logger builds the structured logr.Logger used across the runner.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	consoleEncoder zapcore.Encoder
	jsonEncoder    zapcore.Encoder
)

// Config mirrors the top-level "log_level" field plus an optional logfile
// sink, following the teacher's split between human-facing console output
// and a machine-parseable JSON sink.
type Config struct {
	Level    string
	Encoder  string // "console" (default) or "json"
	Logfile  string
}

func New(cfg Config) (logr.Logger, error) {
	enc := strings.ToLower(cfg.Encoder)

	var encoder zapcore.Encoder
	switch enc {
	case "", "console":
		encoder = consoleEncoder
	case "json":
		encoder = jsonEncoder
	default:
		return logr.Logger{}, fmt.Errorf("%q is an invalid encoder", enc)
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return logr.Logger{}, fmt.Errorf("invalid log level: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if cfg.Logfile != "" {
		file, err := os.Create(cfg.Logfile)
		if err != nil {
			return logr.Logger{}, fmt.Errorf("cannot create logfile logger: %w", err)
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.Lock(file), level))
	}

	log := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCallerSkip(1),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)

	return zapr.NewLogger(log), nil
}

func parseLevel(name string) (zapcore.LevelEnabler, error) {
	if name == "" {
		name = "info"
	}

	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("%q is an invalid log level: %w", name, err)
	}

	return lvl, nil
}

func init() {
	humanCfg := zap.NewDevelopmentEncoderConfig()
	machineCfg := zap.NewProductionEncoderConfig()

	humanCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	machineCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	consoleEncoder = zapcore.NewConsoleEncoder(humanCfg)
	jsonEncoder = zapcore.NewJSONEncoder(machineCfg)
}
