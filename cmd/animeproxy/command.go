package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/adeilh/animeproxy/internal/app"
	"github.com/adeilh/animeproxy/internal/config"
	ilog "github.com/adeilh/animeproxy/internal/log"
	"github.com/adeilh/animeproxy/jikan"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "animeproxy",
		Usage: "caching proxy for the Jikan anime API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars(config.EnvConfig),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP proxy",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides config"},
				},
				Action: serveAction,
			},
			{
				Name:      "get",
				Usage:     "fetch one upstream path through the cache and print it",
				ArgsUsage: "<path>",
				Action:    getAction,
			},
			{
				Name:      "show",
				Usage:     "print a summary of one anime",
				ArgsUsage: "<mal-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "characters", Usage: "also list main characters"},
				},
				Action: showAction,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, Version)
					return err
				},
			},
		},
	}
}

func load(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if err := ilog.Init(cfg.Log.Level); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Server.Address = addr
	}

	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.Args().First())
	if path == "" {
		return errors.New("get: missing <path>")
	}

	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	body, err := a.Fetcher.GetWithRetry(ctx, a.Endpoints.Resolve(path))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(body))
	return err
}

func showAction(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.Args().First())
	if !jikan.ValidID(id) {
		return fmt.Errorf("show: %q is not a MAL id", id)
	}

	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	anime, err := a.Jikan.Anime(ctx, id)
	if err != nil {
		return err
	}
	var chars []jikan.Character
	if cmd.Bool("characters") {
		if chars, err = a.Jikan.Characters(ctx, id); err != nil {
			return err
		}
	}
	return writeSummary(cmd.Root().Writer, anime, chars)
}
