// Package cli implements the deepocr command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/config"
	"github.com/ironsheep/deep-ocr/internal/pipeline"
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	build   BuildInfo
	v       *viper.Viper
	cfgFile string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer

	cfg *config.Config
	log *logrus.Logger

	// newClassifier is swapped out in tests.
	newClassifier func(cfg *config.Config, log logrus.FieldLogger, progress io.Writer) (classifier.Classifier, error)
}

// NewRootCommand builds the command tree. Output goes to stdout, logs and
// progress bars to stderr.
func NewRootCommand(build BuildInfo, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		build:         build,
		v:             config.NewViper(),
		stdin:         stdin,
		stdout:        stdout,
		stderr:        stderr,
		newClassifier: newClassifier,
	}
	return a.rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	var force bool

	root := &cobra.Command{
		Use:   "deepocr [flags] IMAGE...",
		Short: "Strip-tiling OCR for document images",
		Long: `deepocr cuts each image into fixed-size strips, recognizes every strip
with a trained classifier and prints the text in reading order.

On first use (or with --force-train) a model is trained from the labelled
strips in the data directory and saved to the model directory.`,
		Version:       a.build.Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOrchestrator(cmd.Context(), force, func(o *pipeline.Orchestrator) error {
				return o.RecognizeFiles(cmd.Context(), args, a.stdout)
			})
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.Flags().BoolVarP(&force, "force-train", "f", false, "Retrain the model even when a saved one exists")

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (yaml, toml or json)")
	pf.String("model-dir", "model", "Directory holding the saved model and class list")
	pf.String("data-dir", ".", "Directory holding the training strips and index")
	pf.String("backend", config.BackendConvnet, "Classifier backend: convnet, onnx or tesseract")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.Bool("keep-padding", false, "Keep trailing pad spaces on each output line")
	pf.Int("chunk-size", classifier.DefaultChunkSize, "Patches per prediction batch")
	pf.Int("workers", 1, "Concurrent prediction batches")
	pf.String("onnx-lib", "", "Path to the onnxruntime shared library")
	a.bindFlags(root)

	root.AddCommand(
		a.trainCommand(),
		a.evalCommand(),
		a.synthCommand(),
		a.serveCommand(),
		a.versionCommand(),
	)
	return root
}

// bindFlags maps every persistent flag onto the viper key of the same name
// with dashes turned into underscores.
func (a *app) bindFlags(cmd *cobra.Command) {
	for _, name := range []string{
		"model-dir", "data-dir", "backend", "log-level", "keep-padding",
		"chunk-size", "workers", "onnx-lib",
	} {
		// BindPFlag only fails for a nil flag.
		_ = a.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), cmd.PersistentFlags().Lookup(name))
	}
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.LogLevel, a.stderr)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	log.WithFields(logrus.Fields{
		"version": a.build.Version,
		"backend": cfg.Backend,
	}).Debug("configuration loaded")
	return nil
}

// withOrchestrator builds the configured backend, runs Startup and hands the
// ready orchestrator to fn. The backend is closed afterwards.
func (a *app) withOrchestrator(ctx context.Context, force bool, fn func(o *pipeline.Orchestrator) error) error {
	pc, err := a.cfg.Pipeline()
	if err != nil {
		return err
	}
	clf, err := a.newClassifier(a.cfg, a.log, a.stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := classifier.Close(clf); err != nil {
			a.log.WithError(err).Warn("failed to release classifier")
		}
	}()

	o, err := pipeline.New(clf, pc, a.log)
	if err != nil {
		return err
	}
	report, err := o.Startup(ctx, force)
	if err != nil {
		return err
	}
	if report != nil {
		a.log.Infof("training complete: %s", report.Report)
	}
	return fn(o)
}

// Execute runs the command line and exits non-zero on failure.
func Execute(build BuildInfo) {
	// Ctrl+C or SIGTERM cancels in-flight training and recognition.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(build, os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
