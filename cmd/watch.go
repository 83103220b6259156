package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"newsxtract/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		dir            string
		outputFile     string
		numWorkers     int
		filterJSON     string
		pendingMinutes int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor a directory for newly arriving XML/image pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" || outputFile == "" {
				return fmt.Errorf("--dir and --output are required")
			}
			filter, err := loadFilter(filterJSON)
			if err != nil {
				return err
			}

			w, err := watch.New(watch.Config{
				Dir:            dir,
				NumWorkers:     clampWorkers(numWorkers),
				Filter:         filter,
				OutputFile:     outputFile,
				PendingHorizon: time.Duration(pendingMinutes) * time.Minute,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-interrupt
				color.New(color.FgRed, color.Bold).Println("\nstopping watcher")
				cancel()
			}()

			if err := w.Start(ctx); err != nil {
				return err
			}
			color.New(color.FgCyan, color.Bold).Printf("watching %s (ctrl-c to stop)\n", dir)

			<-ctx.Done()
			return w.Stop()
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to watch recursively")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "dedicated CSV output path for watched pairs")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "concurrent worker tasks (1..16)")
	cmd.Flags().StringVar(&filterJSON, "filter", "", "path to a JSON FilterSpec document")
	cmd.Flags().IntVar(&pendingMinutes, "pending-horizon-minutes", 10, "age in minutes before an incomplete pair is surfaced as pending")

	return cmd
}
