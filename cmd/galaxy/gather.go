package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/spf13/cobra"
)

type gatherFlags struct {
	startPage int
	pages     int
	all       bool
	maxPasses int
}

func newGatherCmd() *cobra.Command {
	var f gatherFlags

	cmd := &cobra.Command{
		Use:   "gather <username>",
		Short: "Run gather passes for one user and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGather(cmd, args[0], f)
		},
	}

	cmd.Flags().IntVar(&f.startPage, "start", 1, "first page to fetch")
	cmd.Flags().IntVar(&f.pages, "pages", 0, "page window (default gather.page_chunk)")
	cmd.Flags().BoolVar(&f.all, "all", false, "backfill until the end of the history")
	cmd.Flags().IntVar(&f.maxPasses, "max-passes", 0, "stop --all after this many passes (0 = no limit)")
	return cmd
}

func runGather(cmd *cobra.Command, username string, f gatherFlags) error {
	if !hatena.ValidUsername(username) {
		return fmt.Errorf("%w: %q", hatena.ErrInvalidUsername, username)
	}
	if f.startPage < 1 {
		return errors.New("--start must be >= 1")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	out := json.NewEncoder(cmd.OutOrStdout())

	if f.all {
		next, err := a.gatherer.Backfill(ctx, username, f.startPage, f.maxPasses)
		state, stateErr := a.gatherer.State(ctx, username)
		if stateErr != nil {
			return stateErr
		}
		if encErr := out.Encode(map[string]any{
			"username": username,
			"nextPage": next,
			"state":    state,
		}); encErr != nil {
			return encErr
		}
		return err
	}

	pages := f.pages
	if pages == 0 {
		pages = a.gatherer.PageChunk()
	}
	if pages < 1 || pages > cfg.Gather.MaxPageChunk {
		return fmt.Errorf("--pages must be between 1 and %d", cfg.Gather.MaxPageChunk)
	}

	return out.Encode(a.gatherer.Gather(ctx, username, f.startPage, pages))
}
