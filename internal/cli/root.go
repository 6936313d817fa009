package cli

import (
	goflag "flag"
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/vish/memory-game/internal/allocator"
	"github.com/vish/memory-game/internal/config"
	"github.com/vish/memory-game/internal/prompt"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const (
	banner    = "Welcome to memory game!"
	separator = "-----------------------"
)

// idle holds the process after allocation completes. It never returns.
var idle = func() {
	wait.Forever(func() {}, time.Second)
}

// newConfirmer builds the gate used by --wait.
var newConfirmer = func(cmd *cobra.Command) prompt.Confirmer {
	return prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
}

// NewRootCommand builds the memory-game command.
func NewRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "memory-game",
		Short: "Controllable memory pressure generator",
		Long: `memory-game allocates fixed-size memory blocks one after another, touching
a configurable share of them so they are backed by physical memory, until a
target is reached or the process is killed. Once the target is reached the
memory stays allocated until the process is terminated.`,
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to an optional YAML config file")
	config.AddFlags(cmd.Flags())
	addLogFlags(cmd.PersistentFlags())

	cmd.SetVersionTemplate(fmt.Sprintf("memory-game version %s\ncommit: %s\nbuilt: %s\n", Version, GitCommit, BuildDate))
	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// addLogFlags exposes glog's flags. glog's -v clashes with --verbose, so it
// is renamed to --log-verbosity.
func addLogFlags(fs *pflag.FlagSet) {
	goflag.CommandLine.VisitAll(func(f *goflag.Flag) {
		pf := pflag.PFlagFromGoFlag(f)
		// main may have changed glog's defaults before this runs.
		pf.DefValue = f.Value.String()
		if pf.Name == "v" {
			pf.Name = "log-verbosity"
			pf.Shorthand = ""
		}
		fs.AddFlag(pf)
	})
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, banner)

	if cfg.Verbose {
		dump, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, separator)
		fmt.Fprint(out, dump)
		fmt.Fprintf(out, "Each block is %s\n", humanize.IBytes(uint64(cfg.BlockSizeMB)*allocator.BytesPerMB))
	}

	if cfg.Wait {
		if err := newConfirmer(cmd).Confirm(); err != nil {
			return err
		}
	}

	loop := allocator.New(allocator.Options{
		BlockSizeMB: cfg.BlockSizeMB,
		Interval:    cfg.Interval(),
		TouchRatio:  cfg.TouchRatio,
		StopMB:      cfg.Stop(),
	}, clock.RealClock{})
	state := loop.Run()

	fmt.Fprintf(out, "Memory allocation complete. %d MB allocated, %d MB touched.\n", state.AllocatedMB, state.TouchedMB)
	fmt.Fprintln(out, "Press Ctrl-C to exit")
	glog.Infof("Holding %d blocks until terminated", loop.Retained())

	idle()
	runtime.KeepAlive(loop)
	return nil
}
