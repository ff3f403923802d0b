package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/output"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

// statusReport is what `heykeploy status` prints.
type statusReport struct {
	Platform   string                 `json:"platform" yaml:"platform"`
	ConfigFile string                 `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Binary     binaryStatus           `json:"binary" yaml:"binary"`
	Container  containerStatus        `json:"container" yaml:"container"`
	Recordings []recorder.ProcessInfo `json:"recordings" yaml:"recordings"`
}

type binaryStatus struct {
	Path      string `json:"path" yaml:"path"`
	Installed bool   `json:"installed" yaml:"installed"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type containerStatus struct {
	Runtime   string `json:"runtime" yaml:"runtime"`
	Available bool   `json:"available" yaml:"available"`
	Image     string `json:"image" yaml:"image"`
	ImageID   string `json:"image_id,omitempty" yaml:"image_id,omitempty"`
}

func (r statusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform:    %s\n", r.Platform)
	if r.ConfigFile != "" {
		fmt.Fprintf(&b, "Config:      %s\n", r.ConfigFile)
	}

	switch {
	case r.Binary.Installed && r.Binary.Version != "":
		fmt.Fprintf(&b, "Binary:      %s (%s)\n", r.Binary.Path, r.Binary.Version)
	case r.Binary.Installed:
		fmt.Fprintf(&b, "Binary:      %s (version unknown: %s)\n", r.Binary.Path, r.Binary.Error)
	default:
		fmt.Fprintf(&b, "Binary:      not installed (run heykeploy update)\n")
	}

	switch {
	case !r.Container.Available:
		fmt.Fprintf(&b, "Container:   %s not found\n", r.Container.Runtime)
	case r.Container.ImageID != "":
		fmt.Fprintf(&b, "Container:   %s (%s)\n", r.Container.Image, shortID(r.Container.ImageID))
	default:
		fmt.Fprintf(&b, "Container:   %s not pulled\n", r.Container.Image)
	}

	if len(r.Recordings) == 0 {
		b.WriteString("Recordings:  none")
		return b.String()
	}
	fmt.Fprintf(&b, "Recordings:  %d running", len(r.Recordings))
	for _, p := range r.Recordings {
		fmt.Fprintf(&b, "\n  pid %-7d %s", p.PID, p.Cmdline)
	}
	return b.String()
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func newStatusCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the installed recorder, image and running recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			report, err := collectStatus(cmd, a)
			if err != nil {
				return err
			}
			return output.NewWriter(a.stdout, f).Write(report)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml")
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func collectStatus(cmd *cobra.Command, a *app) (statusReport, error) {
	ctx := cmd.Context()
	report := statusReport{
		ConfigFile: a.cfg.Source,
		Recordings: []recorder.ProcessInfo{},
	}

	info, err := a.detector.Detect(ctx)
	if err != nil {
		return report, fmt.Errorf("detect platform: %w", err)
	}
	report.Platform = info.OS + "/" + info.Arch
	if info.Distro != "" {
		report.Platform += " (" + strings.TrimSpace(info.Distro+" "+info.Version) + ")"
	}

	m, err := a.manager()
	if err != nil {
		return report, err
	}
	report.Binary.Path = m.BinaryPath()
	if report.Binary.Installed, err = m.IsInstalled(); err != nil {
		report.Binary.Error = err.Error()
	} else if report.Binary.Installed {
		if v, err := m.InstalledVersion(ctx); err != nil {
			report.Binary.Error = err.Error()
		} else {
			report.Binary.Version = v
		}
	}

	rt := a.runtime()
	report.Container.Runtime = rt.Name()
	report.Container.Image = a.cfg.Container.Image
	if _, err := rt.Path(); err == nil {
		report.Container.Available = true
		if id, err := rt.ImageID(ctx, a.cfg.Container.Image); err == nil {
			report.Container.ImageID = id
		}
	}

	procs, err := recorder.FindProcesses(ctx, m.BinaryPath())
	if err != nil {
		a.logger.Warn("cannot list recorder processes", "error", err)
	} else if procs != nil {
		report.Recordings = procs
	}

	return report, nil
}
