package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/deep-ocr/internal/pipeline"
	"github.com/ironsheep/deep-ocr/internal/server"
	"github.com/ironsheep/deep-ocr/internal/synth"
)

func (a *app) trainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train (or continue training) the model and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOrchestrator(cmd.Context(), true, func(o *pipeline.Orchestrator) error {
				fmt.Fprintf(a.stdout, "model saved to %s\n", o.ModelPath())
				return nil
			})
		},
	}
}

func (a *app) evalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval DIR",
		Short: "Score the model on a labelled folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOrchestrator(cmd.Context(), false, func(o *pipeline.Orchestrator) error {
				score, err := o.Evaluate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%.4f\n", score)
				return nil
			})
		},
	}
}

func (a *app) synthCommand() *cobra.Command {
	var (
		count  int
		seed   int64
		minLen int
	)
	cmd := &cobra.Command{
		Use:   "synth DIR",
		Short: "Write a synthetic labelled dataset of rendered strips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			codec, err := a.cfg.Codec()
			if err != nil {
				return err
			}
			g, err := synth.New(synth.Config{
				Shape:  a.cfg.PatchShape(),
				Codec:  codec,
				Seed:   seed,
				MinLen: minLen,
				Logger: a.log,
			})
			if err != nil {
				return err
			}
			records, err := g.WriteDataset(args[0], count)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %d strips to %s\n", len(records), args[0])
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "Number of strips to render")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&minLen, "min-len", 1, "Shortest generated label")
	return cmd
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve OCR tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOrchestrator(cmd.Context(), false, func(o *pipeline.Orchestrator) error {
				a.log.WithField("version", a.build.Version).Info("mcp server listening on stdio")
				return server.New(o, a.log, a.build.Version).Run(cmd.Context(), a.stdin, a.stdout)
			})
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skips config loading so it works with a broken config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "deepocr %s\n", a.build.Version)
			fmt.Fprintf(a.stdout, "  Build time: %s\n", a.build.BuildTime)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", a.build.GitCommit)
		},
	}
}
