// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cite-engine/internal/archive"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived runs (list, show, export, search)",
	Long: `Runs reads the SQLite run archive written by enhance. A run id may be
abbreviated to any unique prefix.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the final draft and references of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run as YAML, or its evidence as CSL-YAML or an evidence list",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

var runsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find evidence records whose title or findings contain the query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRunsSearch,
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list (0 for all)")
	runsExportCmd.Flags().String("format", archive.FormatYAML, "export format: yaml, csl or evidence")
	runsSearchCmd.Flags().Int("limit", 50, "maximum number of records to return (0 for all)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsSearchCmd)
	rootCmd.AddCommand(runsCmd)
}

func openArchive() (*archive.Archive, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if cfg.Archive.Path == "" {
		return nil, fmt.Errorf("archive.path is not configured")
	}
	return archive.Open(cfg.Archive.Path)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := a.List(context.Background(), limit)
	if err != nil {
		return err
	}
	return formatRunList(os.Stdout, runs)
}

func formatRunList(w io.Writer, runs []archive.Summary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs archived.")
		return err
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-10s  %-12s  %s\n", "ID", "Started", "Status", "Failed", "Records")
	fmt.Fprintln(w, strings.Repeat("-", 92))
	for _, r := range runs {
		failed := r.FailedStage
		if failed == "" {
			failed = "-"
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-10s  %-12s  %d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, failed, r.Records)
	}
	_, err := fmt.Fprintf(w, "\n%d runs\n", len(runs))
	return err
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	return formatRun(os.Stdout, run)
}

func formatRun(w io.Writer, run archive.Run) error {
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	if run.FailedStage != "" {
		fmt.Fprintf(w, "Failed at %s (%s)\n", run.FailedStage, run.Kind)
	}
	for _, s := range run.Report.Stages {
		fmt.Fprintf(w, "  %-12s  %-8s  attempts=%d  %v\n", s.Stage, s.Status, s.Attempts, s.Duration)
	}

	text := run.Output
	if text == "" {
		text = run.Input
		fmt.Fprintln(w, "\nNo revised draft; input was:")
	}
	fmt.Fprintf(w, "\n%s\n", text)

	if len(run.References) > 0 {
		fmt.Fprintln(w, "\n## References")
		fmt.Fprintln(w)
		for _, line := range run.References {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	format, _ := cmd.Flags().GetString("format")
	return a.Export(context.Background(), args[0], format, os.Stdout)
}

func runRunsSearch(cmd *cobra.Command, args []string) error {
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	hits, err := a.Search(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for _, h := range hits {
		title := h.Record.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Printf("%-8s  %-5s  %-60s  %s\n", shortID(h.RunID), h.Record.ID, title, h.Record.URL)
	}
	fmt.Printf("\n%d results\n", len(hits))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
