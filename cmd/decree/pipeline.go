package main

import (
	"fmt"
	"os"

	"github.com/jtmckay/decree/internal/config"
	"github.com/jtmckay/decree/internal/message"
	"github.com/jtmckay/decree/internal/pipeline"
	"github.com/jtmckay/decree/internal/router"
	"github.com/jtmckay/decree/internal/storage"
)

// newController builds the pipeline Controller for the project rooted at
// the current working directory, loading configuration with the usual
// flag/env/project/home precedence.
func newController() (*pipeline.Controller, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseDir := config.RuntimeDir(cwd)
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%s not initialized; run 'decree init' first", config.RuntimeDirName)
	}

	fs := storage.NewFileStorage(storage.WithBaseDir(baseDir))

	var routeFn message.RouterFunc
	if r := router.New(cfg.Commands.Router); r != nil {
		routeFn = r.Route
	}

	c := &pipeline.Controller{
		Storage:  fs,
		Config:   cfg,
		RepoRoot: cwd,
		BaseDir:  baseDir,
		Router:   routeFn,
	}
	return c, cfg, nil
}
