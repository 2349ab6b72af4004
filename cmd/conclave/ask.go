package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/events"
	"github.com/conclave-ai/conclave/internal/gateway"
	"github.com/conclave-ai/conclave/pkg/logger"
)

type askOptions struct {
	models   []string
	chairman string
	timeout  time.Duration
	title    bool
	full     bool
}

func newAskCommand() *cobra.Command {
	options := &askOptions{}

	command := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one council deliberation and print the synthesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, *options, strings.Join(args, " "))
		},
	}

	command.Flags().StringSliceVar(&options.models, "models", nil, "Council models to query (default from configuration)")
	command.Flags().StringVar(&options.chairman, "chairman", "", "Chairman model for the final synthesis")
	command.Flags().DurationVar(&options.timeout, "timeout", 0, "Per-model query timeout")
	command.Flags().BoolVar(&options.title, "title", false, "Also generate a short title for the question")
	command.Flags().BoolVar(&options.full, "full", false, "Print individual answers and aggregate rankings too")

	return command
}

func init() { rootCmd.AddCommand(newAskCommand()) }

func runAsk(cmd *cobra.Command, options askOptions, question string) error {
	// Stdout carries only the answer; logs go to stderr.
	if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	if cfg.APIKey == "" {
		return errors.New("missing API key: set OPENROUTER_API_KEY or CONCLAVE_API_KEY")
	}

	models := cfg.CouncilModels
	if len(options.models) > 0 {
		models = options.models
	}
	chairman := cfg.ChairmanModel
	if options.chairman != "" {
		chairman = options.chairman
	}
	queryTimeout := cfg.ModelQueryTimeout
	if options.timeout > 0 {
		queryTimeout = options.timeout
	}

	gw := gateway.NewClient(cfg.GatewayURL, cfg.APIKey)
	orchestrator := council.New(gw, models, chairman,
		council.WithQueryTimeout(queryTimeout),
		council.WithTitleTimeout(cfg.TitleTimeout),
		council.WithTitleModel(cfg.TitleModel),
	)

	progress := cmd.ErrOrStderr()
	sink := events.SinkFunc(func(event events.Event) error {
		switch event.Type {
		case events.TypeStage1Start:
			fmt.Fprintf(progress, "stage 1: querying %d council models...\n", len(models))
		case events.TypeStage2Start:
			fmt.Fprintln(progress, "stage 2: collecting peer rankings...")
		case events.TypeStage3Start:
			fmt.Fprintln(progress, "stage 3: synthesizing final answer...")
		}
		return nil
	})

	result, err := orchestrator.Run(ctx, council.Request{Content: question, GenerateTitle: options.title}, sink)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if options.full {
		for _, answer := range result.Stage1 {
			fmt.Fprintf(out, "--- %s ---\n%s\n\n", answer.Model, answer.Response)
		}
		if len(result.Metadata.AggregateRankings) > 0 {
			fmt.Fprintln(out, "--- aggregate ranking ---")
			for i, agg := range result.Metadata.AggregateRankings {
				fmt.Fprintf(out, "%d. %s (average rank %.2f over %d rankings)\n", i+1, agg.Model, agg.AverageRank, agg.RankingsCount)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "--- synthesis (%s) ---\n", result.Stage3.Model)
	}
	fmt.Fprintln(out, result.Stage3.Response)
	if options.title && result.Title != "" {
		fmt.Fprintf(out, "\ntitle: %s\n", result.Title)
	}
	return nil
}
