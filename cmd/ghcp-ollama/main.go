// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ljie-PI/ghcp-ollama/internal/config"
	"github.com/ljie-PI/ghcp-ollama/internal/copilot"
	"github.com/ljie-PI/ghcp-ollama/internal/server"
	"github.com/ljie-PI/ghcp-ollama/internal/version"
)

type cmd struct {
	Config string `help:"Path to an optional YAML config file." type:"path"`
	Port   int    `help:"Listen port override." default:"0"`
	Model  string `help:"Default model override."`

	Run     struct{} `cmd:"" help:"Run the gateway in the foreground."`
	Start   struct{} `cmd:"" help:"Start the gateway as a background process."`
	Stop    struct{} `cmd:"" help:"Stop the background gateway."`
	Status  struct{} `cmd:"" help:"Report whether the background gateway is running."`
	Login   struct{} `cmd:"" help:"Sign in to GitHub with the device-code flow."`
	Version struct{} `cmd:"" help:"Show version."`
}

func main() {
	if err := doMain(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doMain(stdout, stderr io.Writer, args []string) error {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("ghcp-ollama"),
		kong.Description("Local gateway exposing Ollama, OpenAI and Anthropic APIs backed by GitHub Copilot."),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Model != "" {
		cfg.DefaultModel = c.Model
	}

	switch kctx.Command() {
	case "version":
		fmt.Fprintf(stdout, "ghcp-ollama: %s\n", version.Version)
		return nil
	case "run":
		return run(cfg, stderr)
	case "start":
		return start(cfg, stdout, c.Config)
	case "stop":
		return stop(cfg, stdout)
	case "status":
		return status(cfg, stdout)
	case "login":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		return copilot.Login(ctx, cfg.TokenFile(), stdout)
	default:
		panic("unreachable")
	}
}

// run serves in the foreground until SIGINT or SIGTERM.
func run(cfg *config.Config, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	auth := copilot.NewAuthenticator(cfg.TokenFile(), logger)
	go auth.RunRefreshLoop(ctx)

	catalog := copilot.NewModelCatalog()
	if cfg.DefaultModel != "" {
		catalog.Select(cfg.DefaultModel)
	}

	return server.New(cfg, auth, catalog, logger).Run(ctx)
}
