// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bonial-oss/vuln-fusion/internal/config"
	"github.com/bonial-oss/vuln-fusion/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Process exit codes.
const (
	ExitPolicyViolation = 1
	ExitUsage           = 2
	ExitInvalidWeights  = 3
)

// ExitError signals a non-zero exit code with an optional message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// globals holds the persistent flags and the configuration resolved from
// them before any subcommand runs.
type globals struct {
	ConfigPath string
	LogLevel   string
	OrgID      string

	cfg *config.Config
}

// NewRootCommand creates the root cobra command with all subcommands.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:     "vuln-fusion",
		Short:   "Fuse CVSS, EPSS, KEV and SSVC into one explainable risk score",
		Version: Version,
		Long: `vuln-fusion combines vulnerability scoring frameworks (CVSS, EPSS, CISA
KEV and SSVC) into a single 0-100 universal risk score with a per-framework
breakdown, agreement, confidence and conflict flags. Runtime evidence from
SIEM and RMM exports can then adjust a static score to the true risk.

Usage:
  trivy image -f json alpine:latest | vuln-fusion score --format table
  vuln-fusion score < scores.json
  vuln-fusion correlate --cve CVE-2021-44228 --product log4j --evidence evidence.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return g.setup(c)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.ConfigPath, "config", "", "Config file (default ~/.vuln-fusion/config.yaml)")
	flags.StringVar(&g.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&g.OrgID, "org", "", "Organization ID scores are computed and stored for")

	cmd.AddCommand(
		newScoreCommand(g),
		newWeightsCommand(g),
		newCorrelateCommand(g),
		newSSVCCommand(g),
	)
	return cmd
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func (g *globals) setup(c *cobra.Command) error {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return usageError("loading config: %v", err)
	}
	if g.OrgID != "" {
		cfg.OrganizationID = g.OrgID
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return usageError("%v", err)
	}
	stderr := c.ErrOrStderr()
	slog.SetDefault(logging.New(stderr, level, !stderrIsTerminal(stderr)))

	g.cfg = cfg
	return nil
}

// stderrIsTerminal reports whether log records go to an interactive stderr.
func stderrIsTerminal(w io.Writer) bool {
	return w == os.Stderr && term.IsTerminal(int(os.Stderr.Fd()))
}

// openOutput returns the writer for -o, or the command's stdout. The
// returned close func is always non-nil.
func openOutput(c *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return c.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}
