package main

import (
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

func newLatestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the latest published Keploy version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := a.releases().Latest(cmd.Context())
			if err != nil {
				a.notify.Error("Error fetching Keploy version: " + outcome.Failure(outcome.KindNetwork, err).Message)
				return errReported
			}
			a.notify.Info("The latest version of Keploy is " + version)
			return nil
		},
	}
}
