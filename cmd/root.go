// Package cmd wires the newsxtract CLI: a cobra command tree over the
// scheduler, session store, and directory watcher, adapted from the
// teacher's single flat rootCmd into the run/pause/stop/resume/watch/history
// subcommands spec.md §6 names as control operations.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"newsxtract/engine"
	"newsxtract/filterspec"
	"newsxtract/sessionstore"
)

var stateDir string

// Execute runs the newsxtract CLI; it is the sole entry point main calls.
func Execute() error {
	root := newRootCmd()
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsxtract",
		Short: "Extract picture-news records from NewsML XML and resolve their images",
		Long: `newsxtract walks a local directory tree or a remote HTTP index of NewsML
documents, extracts the picture-news record from each, resolves the backing
image, applies an optional filter, and writes a fixed-column CSV.

Modes:
- run: one-shot, streaming (default), or chunked-with-pause processing
- watch: monitor a directory for newly arriving XML/image pairs
- pause/stop/resume: control a running or interrupted session
- history: inspect past sessions
`,
	}

	root.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory holding session state (pause_state.json, history, etc.)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPauseCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".newsxtract"
	}
	return filepath.Join(home, ".newsxtract")
}

func openStore() (*sessionstore.Store, error) {
	return sessionstore.New(stateDir)
}

func newRunCmd() *cobra.Command {
	var (
		rootPath           string
		outputFile         string
		numWorkers         int
		verbose            bool
		mode               string
		chunkSize          int
		pauseBetweenChunks bool
		pauseDuration      int
		filterJSON         string
		interactive        bool
		dryRun             bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new extraction run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootPath == "" || outputFile == "" {
				if !interactive {
					return fmt.Errorf("--root and --output are required (or pass --interactive)")
				}
				var err error
				rootPath, outputFile, err = promptForRootAndOutput(true)
				if err != nil {
					return err
				}
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			sched := engine.New(store)

			filter, err := loadFilter(filterJSON)
			if err != nil {
				return err
			}

			cfg := engine.Config{
				RootDir:            rootPath,
				OutputFile:         outputFile,
				NumWorkers:         clampWorkers(numWorkers),
				Verbose:            verbose,
				ProcessingMode:     engine.Mode(mode),
				ChunkSize:          chunkSize,
				PauseBetweenChunks: pauseBetweenChunks,
				PauseDuration:      pauseDuration,
				Filter:             filter,
				DryRun:             dryRun,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-interrupt
				color.New(color.FgRed, color.Bold).Println("\ninterrupted, requesting stop")
				sched.Stop()
			}()

			events, err := sched.Run(ctx, cfg)
			if err != nil {
				return err
			}
			renderEvents(events, verbose)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rootPath, "root", "r", "", "local directory or remote HTTP(S) index to scan")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "CSV output path")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "concurrent worker tasks (1..16)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "emit a log event per completed task")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(engine.ModeStream), "processing mode: regular, stream, or chunked")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 100, "chunk size for chunked mode")
	cmd.Flags().BoolVar(&pauseBetweenChunks, "pause-between-chunks", false, "pause between chunks in chunked mode")
	cmd.Flags().IntVar(&pauseDuration, "pause-duration", 0, "inter-chunk pause duration in seconds")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "path to a JSON FilterSpec document")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "prompt for --root/--output when omitted, trying a native directory picker first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run enumeration/extraction/resolution/filtering but skip moving images and writing CSV rows")

	return cmd
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the active session at the next suspension point",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return engine.New(store).Pause()
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active session at the next suspension point",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return engine.New(store).Stop()
		},
	}
}

func newResumeCmd() *cobra.Command {
	var numWorkers int
	var verbose bool
	var filterJSON string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Reload persisted run state and continue an interrupted chunked or streaming run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			sched := engine.New(store)

			filter, err := loadFilter(filterJSON)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-interrupt
				sched.Stop()
			}()

			events, err := sched.Resume(ctx, engine.Config{NumWorkers: clampWorkers(numWorkers), Filter: filter})
			if err != nil {
				return err
			}
			renderEvents(events, verbose)
			return nil
		},
	}

	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "concurrent worker tasks (1..16)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "emit a log event per completed task")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "path to a JSON FilterSpec document")
	return cmd
}

// humanizedSize renders the CSV's final size for the completion banner,
// e.g. "1.2 MB"; an unreadable path just prints as "unknown size".
func humanizedSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}

func loadFilter(path string) (*filterspec.Spec, error) {
	if path == "" {
		return &filterspec.Spec{Enabled: false}, nil
	}
	return readFilterSpec(path)
}

// renderEvents drains the event channel, rendering a progress bar (adapted
// from the teacher's progressbar.NewOptions usage) plus colored terminal
// summaries in the teacher's style.
func renderEvents(events <-chan engine.Event, verbose bool) {
	var bar *progressbar.ProgressBar

	for evt := range events {
		switch evt.Type {
		case engine.EventStart:
			color.New(color.FgCyan, color.Bold).Println("starting run...")
		case engine.EventProgress:
			if bar == nil && evt.Total > 0 {
				bar = progressbar.NewOptions(evt.Total,
					progressbar.OptionSetDescription("processing"),
					progressbar.OptionSetTheme(progressbar.Theme{Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]"}),
				)
			}
			if bar != nil {
				bar.Set(evt.Processed)
			}
			if verbose {
				fmt.Printf(" processed=%d successful=%d errors=%d filtered=%d\n", evt.Processed, evt.Successful, evt.Errors, evt.Filtered)
			}
		case engine.EventChunkStart:
			color.New(color.FgBlue).Printf("chunk %d/%d starting\n", evt.CurrentChunk+1, evt.TotalChunks)
		case engine.EventChunkComplete:
			color.New(color.FgBlue).Printf("chunk %d/%d complete\n", evt.CurrentChunk+1, evt.TotalChunks)
		case engine.EventPauseCountdown:
			fmt.Printf("\rresuming in %ds...", evt.Remaining)
		case engine.EventPaused:
			color.New(color.FgYellow, color.Bold).Println("\npaused — resume with `newsxtract resume`")
		case engine.EventShutdown:
			color.New(color.FgYellow, color.Bold).Println("\nstopped — resume with `newsxtract resume`")
		case engine.EventError:
			color.New(color.FgRed).Printf("error: %s\n", evt.Message)
		case engine.EventComplete:
			if bar != nil {
				bar.Finish()
			}
			color.New(color.FgGreen, color.Bold).Printf("\ndone: %d processed, %d records written -> %s (%s)\n",
				evt.Stats.ProcessedFiles, evt.Stats.RecordsWritten, evt.OutputFile, humanizedSize(evt.OutputFile))
		}
	}
}
