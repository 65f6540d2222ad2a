// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine creates and configures execution engines.
//
// An engine owns a buffer arena, a worker scheduler, a scratch pool and the
// seed source of the random kernels. Engines are independent: several can
// run in one process and each is shut down on its own.
//
// Example:
//
//	cfg, err := engine.LoadConfig("engine.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	e, err := engine.New(cfg, engine.WithLogger(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Shutdown(context.Background())
package engine

import (
	"github.com/born-ml/tensorexec/internal/engine"
)

// Context is one engine instance.
type Context = engine.Context

// Config holds the settings of one engine instance.
type Config = engine.Config

// Option customizes New.
type Option = engine.Option

// ErrClosed is returned by operations on an engine that was shut down.
var ErrClosed = engine.ErrClosed

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// ConfigFromEnv returns the defaults overridden by TENSOREXEC_* variables.
func ConfigFromEnv() Config {
	return engine.ConfigFromEnv()
}

// LoadConfig reads a YAML file over the environment configuration.
func LoadConfig(path string) (Config, error) {
	return engine.LoadConfig(path)
}

// New creates an engine.
func New(cfg Config, opts ...Option) (*Context, error) {
	return engine.New(cfg, opts...)
}

// Options re-exported from the internal engine.
var (
	WithLogger     = engine.WithLogger
	WithRegisterer = engine.WithRegisterer
	WithGemm       = engine.WithGemm
	WithSeedSource = engine.WithSeedSource
)
