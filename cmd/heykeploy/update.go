package main

import (
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/binary"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

type updateOptions struct {
	docker bool
	url    string
	image  string
}

func newUpdateCmd(a *app) *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install or refresh the Keploy recorder",
		Long: `Update downloads the latest Keploy release for this platform, verifies it,
and atomically replaces the installed binary. With --docker it pulls the
recorder image instead.

Examples:
  heykeploy update
  heykeploy update --url https://example.com/keploy_linux_amd64.tar.gz
  heykeploy update --docker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.docker, "docker", false, "Pull the recorder container image instead of the binary")
	cmd.Flags().StringVar(&opts.url, "url", "", "Release archive URL (default: latest release for this platform)")
	cmd.Flags().StringVar(&opts.image, "image", "", "Container image for --docker (default from config)")

	return cmd
}

func runUpdate(cmd *cobra.Command, a *app, opts updateOptions) error {
	ctx := cmd.Context()

	var src binary.Source
	if opts.docker {
		src = binary.Source{Container: true, Image: opts.image}
		if src.Image == "" {
			src.Image = a.cfg.Container.Image
		}
	} else {
		var err error
		if src, err = a.archiveSource(ctx, opts.url); err != nil {
			a.notify.Result(outcome.Failure(outcome.KindInvalidInput, err))
			return errReported
		}
	}

	m, err := a.manager()
	if err != nil {
		return err
	}

	result := m.Update(ctx, src, a.notify.Status)
	a.notify.Result(result)
	if !result.OK {
		return errReported
	}
	return nil
}
