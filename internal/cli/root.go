// Package cli implements the pdbdump command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jtang613/pdbtpi/internal/config"
	"github.com/jtang613/pdbtpi/internal/logging"
	"github.com/jtang613/pdbtpi/pkg/pdb"
	"github.com/jtang613/pdbtpi/pkg/pdb/streams"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// app holds state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	format     string
	pretty     bool
	logLevel   string
	workers    int

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCmd creates the pdbdump root command.
func NewRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   "pdbdump",
		Short: "Inspect the type catalogs of Microsoft PDB files",
		Long: `pdbdump reads the MSF container of a PDB file and decodes its TPI and IPI
type catalogs. Results are written as JSON, YAML or CBOR.

Settings are read from ~/.pdbdump.yaml (or --config) and may be overridden
with PDBDUMP_LOG_LEVEL, PDBDUMP_FORMAT and PDBDUMP_WORKERS, then by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.pdbdump.yaml)")
	flags.StringVarP(&a.format, "format", "f", "", "output format: json, yaml or cbor")
	flags.BoolVar(&a.pretty, "pretty", false, "indent JSON output")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.IntVarP(&a.workers, "workers", "w", 0, "decode records with this many goroutines before output")

	cmd.AddCommand(newInfoCmd(a))
	cmd.AddCommand(newTypesCmd(a))
	cmd.AddCommand(newTypeCmd(a))
	cmd.AddCommand(newHashesCmd(a))
	cmd.AddCommand(newOffsetsCmd(a))
	cmd.AddCommand(newDedupCmd(a))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	path, required := a.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}

	a.override(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logging.NewWithComponent(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	}, "pdbdump")
	return nil
}

// override copies flags given on the command line over cfg.
func (a *app) override(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("format") {
		cfg.Output.Format = a.format
	}
	if flags.Changed("pretty") {
		cfg.Output.Pretty = a.pretty
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("workers") {
		cfg.Decode.Workers = a.workers
	}
}

func (a *app) open(path string) (*pdb.File, error) {
	f, err := pdb.Open(path, pdb.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("path", path).Msg("opened PDB")
	return f, nil
}

// catalog opens the TPI or IPI stream and prefetches it when workers are
// configured.
func (a *app) catalog(ctx context.Context, f *pdb.File, ipi bool) (*streams.TPIStream, error) {
	open, name := f.TPI, "TPI"
	if ipi {
		open, name = f.IPI, "IPI"
	}
	tpi, err := open()
	if err != nil {
		return nil, err
	}
	if w := a.cfg.Decode.Workers; w > 1 {
		if err := tpi.Prefetch(ctx, w); err != nil {
			// Records that fail here fail again on access; keep going.
			a.log.Warn().Err(err).Str("stream", name).Msg("prefetch stopped")
		} else {
			a.log.Debug().Int("workers", w).Int("records", tpi.Count()).Str("stream", name).Msg("prefetched records")
		}
	}
	return tpi, nil
}

func (a *app) write(cmd *cobra.Command, v any) error {
	return writeOutput(cmd.OutOrStdout(), a.cfg.Output.Format, a.cfg.Output.Pretty, v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdbdump version %s\n", Version)
		},
	}
}

func catalogFlag(cmd *cobra.Command, ipi *bool) {
	cmd.Flags().BoolVar(ipi, "ipi", false, fmt.Sprintf("read the IPI stream (%d) instead of TPI (%d)", pdb.StreamIPI, pdb.StreamTPI))
}
