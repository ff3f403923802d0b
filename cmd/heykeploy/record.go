package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

type recordOptions struct {
	command  string
	filePath string
	wait     bool
}

func newRecordCmd(a *app) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start the recorder for a command and test file",
		Long: `Record launches "keploy record" for the given command and file and returns
as soon as the recorder is running. The recorder keeps running after
heykeploy exits unless --wait is given.

Examples:
  heykeploy record --command "npm start" --path ./keploy/app.yaml
  heykeploy record --command "go run ." --path ./tests --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.command, "command", "c", "", "Command that starts the application under test")
	cmd.Flags().StringVarP(&opts.filePath, "path", "p", "", "File or directory the recorder writes test cases for")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Wait for the recorder to exit; Ctrl-C stops it")

	return cmd
}

func runRecord(cmd *cobra.Command, a *app, opts recordOptions) error {
	ctx := cmd.Context()
	l := a.launcher()

	rec, result := l.Start(ctx, recorder.Request{Command: opts.command, FilePath: opts.filePath})
	a.notify.Result(result)
	if !result.OK {
		return errReported
	}
	if rec.LogPath != "" {
		a.notify.Status(outcome.Status{Op: "record", Stage: "log", Message: rec.LogPath})
	}

	if !opts.wait {
		return l.Shutdown(ctx, recorder.Detach)
	}

	select {
	case <-rec.Done():
	case <-ctx.Done():
		grace, err := a.cfg.Record.GraceDuration()
		if err != nil {
			return err
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := l.Shutdown(shutdownCtx, recorder.Terminate); err != nil {
			return fmt.Errorf("stop recording: %w", err)
		}
	}

	ev, _ := rec.Exit()
	switch {
	case ev.ExitCode == 0:
		a.notify.Info(fmt.Sprintf("Recording finished (pid %d)", ev.PID))
		return nil
	case ctx.Err() != nil:
		a.notify.Info(fmt.Sprintf("Recording stopped (pid %d)", ev.PID))
		return nil
	default:
		a.notify.Error(fmt.Sprintf("Recording exited with code %d (pid %d)", ev.ExitCode, ev.PID))
		if ev.StderrTail != "" {
			fmt.Fprint(a.stderr, ev.StderrTail)
		}
		return errReported
	}
}
