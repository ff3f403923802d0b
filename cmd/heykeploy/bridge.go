package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/bridge"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

type bridgeOptions struct {
	listen    string
	stdio     bool
	progress  bool
	terminate bool
}

func newBridgeCmd(a *app) *cobra.Command {
	var opts bridgeOptions

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve the editor panel's message protocol",
		Long: `Bridge accepts the editor panel's messages (updateKeploy, updateKeployDocker,
startRecordingCommand, ...) and answers with success and error replies.

With --stdio messages are newline-delimited JSON on stdin and stdout.
Otherwise a WebSocket endpoint is served at ws://<listen>/ws; the listen
address must be loopback.

Recordings started through the bridge keep running when it exits unless
--terminate is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "WebSocket listen address (default from config, 127.0.0.1:7781)")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "Serve JSON lines on stdin/stdout instead of WebSocket")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Send update progress as info replies")
	cmd.Flags().BoolVar(&opts.terminate, "terminate", false, "Stop running recordings when the bridge exits")
	cmd.MarkFlagsMutuallyExclusive("listen", "stdio")

	return cmd
}

func runBridge(cmd *cobra.Command, a *app, opts bridgeOptions) error {
	ctx := cmd.Context()

	listen := opts.listen
	if listen == "" {
		listen = a.cfg.Bridge.Listen
	}
	if !opts.stdio {
		if err := bridge.ValidateListen(listen); err != nil {
			return err
		}
	}

	m, err := a.manager()
	if err != nil {
		return err
	}
	l := a.launcher()

	archive, err := a.archiveSource(ctx, "")
	if err != nil {
		// updateKeploy then fails with an invalid input reply.
		a.logger.Warn("no release archive for this platform", "error", err)
	}

	d := bridge.NewDispatcher(bridge.Options{
		Updater:  m,
		Launcher: l,
		Versions: a.releases(),
		Archive:  archive,
		Image:    a.cfg.Container.Image,
		Progress: opts.progress,
		Logger:   a.logger,
	})

	if opts.stdio {
		err = d.ServeStdio(ctx, a.stdin, a.stdout, l.Events())
	} else {
		err = d.ListenAndServe(ctx, listen, l.Events())
	}

	if serr := stopRecordings(a, l, opts.terminate); serr != nil && err == nil {
		err = serr
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func stopRecordings(a *app, l *recorder.Launcher, terminate bool) error {
	if !terminate {
		return l.Shutdown(context.Background(), recorder.Detach)
	}
	grace, err := a.cfg.Record.GraceDuration()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := l.Shutdown(ctx, recorder.Terminate); err != nil {
		return fmt.Errorf("stop recordings: %w", err)
	}
	return nil
}
