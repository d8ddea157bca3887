package main

import (
	"errors"
	"io/fs"
	"os"

	"gapper-terminal/src/config"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/session"
	"gapper-terminal/src/storage"
)

// -----------------------------------------------------------------------------

// loadConfig falls back to defaults when the default path does not exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	conf, err := config.NewConfig(path)
	if err == nil {
		return conf, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// -----------------------------------------------------------------------------

// setupLogging routes logs to the configured file. With a UI attached and no
// file configured, logs are discarded rather than drawn over the screen.
func setupLogging(cfg *models.MConfig, ui bool) (func(), error) {
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.LogFile == "" {
		if ui {
			logger.SetOutput(nopWriter{})
		}
		return func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(f)
	return func() { f.Close() }, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// -----------------------------------------------------------------------------

func setupSession(cfg *models.MConfig, log *logger.Logger) (*session.Session, error) {
	store, err := storage.New(cfg, log.Named("Storage"))
	if err != nil {
		log.Warning("Preference store unavailable, continuing without it: %v", err)
		store = nil
	}

	return session.New(cfg, session.Deps{Store: store, Logger: log.Named("Session")})
}
