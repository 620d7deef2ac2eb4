package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Serve loads configuration, validates the security policy and runs the
// server until SIGINT or SIGTERM. autoMigrate forces migrations on startup.
func Serve(ctx context.Context, cfg Config, autoMigrate bool) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}
	cfg.AutoMigrate = cfg.AutoMigrate || autoMigrate

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	return a.Run(ctx)
}
