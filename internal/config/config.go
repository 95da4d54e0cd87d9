// Package config loads deepocr settings from defaults, an optional config
// file, DEEPOCR_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ironsheep/deep-ocr/internal/classifier"
	"github.com/ironsheep/deep-ocr/internal/dataset"
	"github.com/ironsheep/deep-ocr/internal/imaging"
	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
	"github.com/ironsheep/deep-ocr/internal/pipeline"
)

// EnvPrefix namespaces environment overrides, e.g. DEEPOCR_MODEL_DIR.
const EnvPrefix = "DEEPOCR"

// Backend names.
const (
	BackendConvnet   = "convnet"
	BackendONNX      = "onnx"
	BackendTesseract = "tesseract"
)

// Config is the full set of runtime settings.
type Config struct {
	PatchHeight int    `mapstructure:"patch_height"`
	PatchWidth  int    `mapstructure:"patch_width"`
	MaxChars    int    `mapstructure:"max_chars"`
	Alphabet    string `mapstructure:"alphabet"`

	ModelDir  string `mapstructure:"model_dir"`
	ModelName string `mapstructure:"model_name"`
	DataDir   string `mapstructure:"data_dir"`
	IndexFile string `mapstructure:"index_file"`

	Backend  string `mapstructure:"backend"`
	LogLevel string `mapstructure:"log_level"`

	KeepPadding bool `mapstructure:"keep_padding"`
	ChunkSize   int  `mapstructure:"chunk_size"`
	Workers     int  `mapstructure:"workers"`

	MaxIterations    int     `mapstructure:"max_iterations"`
	RefineIterations int     `mapstructure:"refine_iterations"`
	TestFraction     float64 `mapstructure:"test_fraction"`
	SplitSeed        int64   `mapstructure:"split_seed"`
	SampleFraction   float64 `mapstructure:"sample_fraction"`
	SampleSeed       int64   `mapstructure:"sample_seed"`

	Hidden    int     `mapstructure:"hidden"`
	BatchSize int     `mapstructure:"batch_size"`
	LearnRate float64 `mapstructure:"learn_rate"`
	Reg       float64 `mapstructure:"reg"`
	Tolerance float64 `mapstructure:"tolerance"`
	Seed      int64   `mapstructure:"seed"`

	ONNXLib        string `mapstructure:"onnx_lib"`
	TesseractLang  string `mapstructure:"tesseract_lang"`
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("patch_height", imaging.DefaultPatchShape.Height)
	v.SetDefault("patch_width", imaging.DefaultPatchShape.Width)
	v.SetDefault("max_chars", labels.DefaultMaxChars)
	v.SetDefault("alphabet", labels.DefaultSymbols)

	v.SetDefault("model_dir", "model")
	v.SetDefault("model_name", pipeline.DefaultModelName)
	v.SetDefault("data_dir", ".")
	v.SetDefault("index_file", dataset.DefaultIndexFile)

	v.SetDefault("backend", BackendConvnet)
	v.SetDefault("log_level", "info")

	v.SetDefault("keep_padding", false)
	v.SetDefault("chunk_size", classifier.DefaultChunkSize)
	v.SetDefault("workers", 1)

	v.SetDefault("max_iterations", pipeline.DefaultMaxIterations)
	v.SetDefault("refine_iterations", pipeline.DefaultRefineIterations)
	v.SetDefault("test_fraction", dataset.DefaultTestFraction)
	v.SetDefault("split_seed", dataset.DefaultSeed)
	v.SetDefault("sample_fraction", dataset.DefaultSampleFraction)
	v.SetDefault("sample_seed", dataset.DefaultSeed)

	v.SetDefault("hidden", 64)
	v.SetDefault("batch_size", 512)
	v.SetDefault("learn_rate", 1e-3)
	v.SetDefault("reg", 1e-5)
	v.SetDefault("tolerance", 1e-2)
	v.SetDefault("seed", 42)

	v.SetDefault("onnx_lib", "")
	v.SetDefault("tesseract_lang", "eng")
	v.SetDefault("tessdata_prefix", "")
}

// NewViper returns a viper instance with defaults and environment lookup
// installed. Dashes in keys map to underscores in variable names.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file into v when set and decodes the merged settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if err := c.PatchShape().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Codec(); err != nil {
		errs = append(errs, err)
	}
	switch c.Backend {
	case BackendConvnet:
		if c.MaxChars > 0 && c.PatchWidth%c.MaxChars != 0 {
			errs = append(errs, ocrerr.Configf("patch width %d is not a multiple of max chars %d", c.PatchWidth, c.MaxChars))
		}
	case BackendONNX, BackendTesseract:
	default:
		errs = append(errs, ocrerr.Configf("unknown backend %q", c.Backend))
	}
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		errs = append(errs, ocrerr.Configf("test fraction %v must be in [0, 1)", c.TestFraction))
	}
	if c.SampleFraction < 0 || c.SampleFraction > 1 {
		errs = append(errs, ocrerr.Configf("sample fraction %v must be in [0, 1]", c.SampleFraction))
	}
	if c.ModelDir == "" {
		errs = append(errs, ocrerr.Configf("model directory is required"))
	}
	return errors.Join(errs...)
}

// PatchShape returns the configured patch geometry. Channels is always 3.
func (c *Config) PatchShape() imaging.PatchShape {
	return imaging.PatchShape{Height: c.PatchHeight, Width: c.PatchWidth, Channels: 3}
}

// Codec builds the label codec from the alphabet and max chars.
func (c *Config) Codec() (labels.Codec, error) {
	alphabet, err := labels.NewAlphabet(c.Alphabet)
	if err != nil {
		return labels.Codec{}, err
	}
	return labels.NewCodec(alphabet, c.MaxChars)
}

// Pipeline converts the settings into an orchestrator configuration.
func (c *Config) Pipeline() (pipeline.Config, error) {
	codec, err := c.Codec()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Shape:            c.PatchShape(),
		Codec:            codec,
		ModelDir:         c.ModelDir,
		ModelName:        c.ModelName,
		DataDir:          c.DataDir,
		IndexFile:        c.IndexFile,
		MaxIterations:    c.MaxIterations,
		RefineIterations: c.RefineIterations,
		ChunkSize:        c.ChunkSize,
		Workers:          c.Workers,
		TestFraction:     c.TestFraction,
		SplitSeed:        c.SplitSeed,
		SampleFraction:   c.SampleFraction,
		SampleSeed:       c.SampleSeed,
		KeepPadding:      c.KeepPadding,
	}, nil
}
