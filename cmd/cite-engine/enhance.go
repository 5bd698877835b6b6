// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/internal/archive"
	"github.com/pdiddy/cite-engine/internal/engine"
	"github.com/pdiddy/cite-engine/internal/logging"
	"github.com/pdiddy/cite-engine/internal/metrics"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/pkg/types"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [draft-file]",
	Short: "Add grounded citations to a draft",
	Long: `Enhance runs the full pipeline over a draft read from a file, or from stdin
when the argument is omitted or "-". The revised draft and its reference list
are written to stdout, or to --output.

Every run, completed or aborted, is recorded in the run archive unless
--no-archive is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().StringP("output", "o", "", "write the revised draft to this file instead of stdout")
	enhanceCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file after the run")
	enhanceCmd.Flags().Bool("no-archive", false, "do not record the run in the archive")
	enhanceCmd.Flags().Bool("no-references", false, "omit the reference list from the output")

	rootCmd.AddCommand(enhanceCmd)
}

func runEnhance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	draft, err := readDraft(args)
	if err != nil {
		return err
	}

	metrics.Register()
	client := &http.Client{}
	gen, err := engine.NewGenerator(cfg.LLM, client, logger)
	if err != nil {
		return err
	}
	provider, err := engine.NewProvider(cfg.Search, client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	store, report, runErr := engine.New(cfg, gen, provider, logger).Run(ctx, draft)

	if noArchive, _ := cmd.Flags().GetBool("no-archive"); !noArchive && cfg.Archive.Path != "" {
		archiveRun(cfg.Archive, archive.NewRun(started, store, report, runErr), logger)
	}
	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logger.Warn("writing metrics file", zap.String("path", path), zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	noRefs, _ := cmd.Flags().GetBool("no-references")
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		return writeResultFile(path, store, !noRefs)
	}
	return writeResult(os.Stdout, store, !noRefs)
}

// writeResultFile writes the result to path. A failed close is reported,
// since it can mean the draft was not fully written.
func writeResultFile(path string, store *record.Store, withRefs bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()
	if err := writeResult(f, store, withRefs); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}

func readDraft(args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading draft: %w", err)
	}
	draft := strings.TrimSpace(string(data))
	if draft == "" {
		return "", fmt.Errorf("draft is empty")
	}
	return draft, nil
}

// archiveRun records run. Archive failures are logged, not returned, so a
// completed run still prints its result.
func archiveRun(cfg types.ArchiveConfig, run archive.Run, logger *zap.Logger) {
	a, err := archive.Open(cfg.Path)
	if err != nil {
		logger.Warn("opening run archive", zap.String("path", cfg.Path), zap.Error(err))
		return
	}
	defer a.Close()

	if err := a.Save(context.Background(), run); err != nil {
		logger.Warn("archiving run", zap.String("run", run.ID), zap.Error(err))
		return
	}
	fmt.Fprintf(os.Stderr, "Archived run %s (%s)\n", run.ID, run.Status)
}

func writeResult(w io.Writer, store *record.Store, withRefs bool) error {
	if _, err := fmt.Fprintln(w, store.Draft()); err != nil {
		return err
	}
	refs := store.References()
	if !withRefs || len(refs) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\n## References\n"); err != nil {
		return err
	}
	for _, line := range refs {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
