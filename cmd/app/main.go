// Package main provides the entry point for the gateway with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/gridgate/cmd/app/commands"
	"github.com/allisson/gridgate/internal/app"
	"github.com/allisson/gridgate/internal/config"
	userUsecase "github.com/allisson/gridgate/internal/user/usecase"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "gridgate",
		Usage:   "Identity-federation login gateway for a virtual-world grid",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the HTTP server and the outbox worker",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					container := app.NewContainer(cfg)
					return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
				},
			},
			{
				Name:  "create-user",
				Usage: "Create a pre-registered local account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "first-name",
						Required: true,
						Usage:    "Account first name",
					},
					&cli.StringFlag{
						Name:     "sur-name",
						Required: true,
						Usage:    "Account surname",
					},
					&cli.StringFlag{
						Name:     "email",
						Required: true,
						Usage:    "Account email address",
					},
					&cli.StringFlag{
						Name:     "password",
						Required: true,
						Usage:    "Account password",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					container := app.NewContainer(cfg)

					useCase, err := container.UserUseCase()
					if err != nil {
						return err
					}

					input := userUsecase.CreateAccountInput{
						FirstName: cmd.String("first-name"),
						SurName:   cmd.String("sur-name"),
						Email:     cmd.String("email"),
						Password:  cmd.String("password"),
					}
					return commands.RunCreateUser(ctx, useCase, os.Stdout, input)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
