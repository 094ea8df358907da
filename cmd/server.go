package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuko798/appli.io/internal/api"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "appli",
		Usage: "track job applications from Gmail",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file (defaults to $CONFIG_FILE or config.yaml)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "dotenv file with secrets",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the periodic Gmail sync",
				Action: serveAction,
			},
			{
				Name:   "sync",
				Usage:  "run one Gmail sync and print the summary",
				Action: syncAction,
			},
			{
				Name:  "classify",
				Usage: "classify a single email and print the diagnostic",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "email subject"},
					&cli.StringFlag{Name: "body", Usage: "email body"},
					&cli.StringFlag{Name: "from", Usage: "From header"},
				},
				Action: classifyAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFromCommand(cmd *cli.Command) (AppConfig, error) {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("load env file: %w", err)
		}
	}
	return loadConfig(cmd.String("config"))
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: deps.handler, ReadHeaderTimeout: 10 * time.Second}
	log.Printf("listening on %s", cfg.Server.Addr)
	return runServer(ctx, srv, deps.sched, 5*time.Second)
}

func syncAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	sum, err := runOnceManual(ctx, cfg, buildDeps)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, sum)
}

func classifyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	proc, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	return runClassify(os.Stdout, proc, cmd.String("subject"), cmd.String("body"), cmd.String("from"))
}

func runClassify(w io.Writer, a api.Analyzer, subject, body, from string) error {
	if subject == "" && body == "" {
		return fmt.Errorf("subject or body required")
	}
	return writeJSON(w, a.Analyze(subject, body, from))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
