// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/molihua12345/KubeAgent/internal/backend"
)

// healthReport is the --json output of the health command.
type healthReport struct {
	Backend   string  `json:"backend"`
	Healthy   bool    `json:"healthy"`
	Status    string  `json:"status,omitempty"`
	Version   string  `json:"version,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the backend is reachable",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			health, err := a.client.Health(cmd.Context())
			report := newHealthReport(a.client.BaseURL(), health, err)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			} else {
				printHealth(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newHealthReport(url string, h backend.Health, err error) healthReport {
	r := healthReport{Backend: url, Healthy: err == nil}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Status = h.Status
	r.Version = h.Version
	r.LatencyMs = float64(h.Latency.Microseconds()) / 1000
	if h.Timestamp > 0 {
		sec := int64(h.Timestamp)
		nsec := int64((h.Timestamp - float64(sec)) * 1e9)
		r.Timestamp = time.Unix(sec, nsec).UTC().Format(time.RFC3339)
	}
	return r
}

func printHealth(w io.Writer, r healthReport) {
	status := "online"
	if !r.Healthy {
		status = "offline"
	}
	fmt.Fprintf(w, "%s %s\n", RenderStatus(status), TitleStyle.Render("KubeWizard backend"))
	fmt.Fprintf(w, "  %s %s\n", RenderLabel("URL"), r.Backend)
	if !r.Healthy {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("Error"), ErrorStyle.Render(r.Error))
		return
	}
	if r.Status != "" {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("Status"), r.Status)
	}
	if r.Version != "" {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("Version"), r.Version)
	}
	if r.Timestamp != "" {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel("Server time"), r.Timestamp)
	}
	fmt.Fprintf(w, "  %s %.1f ms\n", RenderLabel("Latency"), r.LatencyMs)
}
