// Package config - Configuration for the fire/smoke feature-extraction pipeline.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then FIRESMOKE_* environment variables (optionally seeded from a .env
// file).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all pipeline configuration.
type Config struct {
	Dataset    DatasetConfig    `json:"dataset"    yaml:"dataset"`
	Extractor  ExtractorConfig  `json:"extractor"  yaml:"extractor"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Cache      CacheConfig      `json:"cache"      yaml:"cache"`
	Output     OutputConfig     `json:"output"     yaml:"output"`
	LogLevel   string           `json:"log_level"  yaml:"log_level"`
}

// DatasetConfig locates the labelled image tree.
type DatasetConfig struct {
	// Root contains the Train and Test directories.
	Root string `json:"root"      yaml:"root"`
	// TrainDir is the directory under Root used for fitting.
	TrainDir string `json:"train_dir" yaml:"train_dir"`
	// TestDir is the directory under Root used for evaluation and sample predictions.
	TestDir string `json:"test_dir"  yaml:"test_dir"`
}

// ExtractorConfig describes the frozen feature network and how images reach it.
type ExtractorConfig struct {
	// ModelPath is the ONNX export of the headless VGG16 network.
	ModelPath string `json:"model_path"       yaml:"model_path"`
	// Backbone names the network in ModelPath and selects its preprocessing
	// (vgg16, vgg19, resnet50, mobilenetv2).
	Backbone string `json:"backbone"         yaml:"backbone"`
	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string `json:"shared_lib_path"  yaml:"shared_lib_path"`
	// Backend is the onnxruntime execution provider (cpu, cuda, coreml, openvino).
	Backend string `json:"backend"          yaml:"backend"`
	// Loader selects the image decoder (native, opencv).
	Loader string `json:"loader"           yaml:"loader"`
	// Interpolation used when resizing (nearest, bilinear, bicubic, lanczos3).
	Interpolation  string `json:"interpolation"    yaml:"interpolation"`
	InputWidth     int    `json:"input_width"      yaml:"input_width"`
	InputHeight    int    `json:"input_height"     yaml:"input_height"`
	IntraOpThreads int    `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int    `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// ClassifierConfig holds the logistic regression and split settings.
type ClassifierConfig struct {
	// Solver is lbfgs or adam.
	Solver string `json:"solver"     yaml:"solver"`
	// C is the inverse L2 regularisation strength.
	C         float64 `json:"c"          yaml:"c"`
	MaxIter   int     `json:"max_iter"   yaml:"max_iter"`
	Tol       float64 `json:"tol"        yaml:"tol"`
	LearnRate float64 `json:"learn_rate" yaml:"learn_rate"`
	// TestSize is the held-out fraction of the training tree.
	TestSize float64 `json:"test_size"  yaml:"test_size"`
	Seed     int64   `json:"seed"       yaml:"seed"`
}

// CacheConfig controls the SQLite feature cache.
type CacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path"    yaml:"path"`
}

// OutputConfig controls where the fitted classifier is written and how often
// progress is reported.
type OutputConfig struct {
	ModelPath string `json:"model_path"      yaml:"model_path"`
	// ReportInterval between runtime status lines during training, e.g. "30s".
	// Zero disables them.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
}

// Default returns the configuration for the Kaggle dataset layout and the
// stock classifier settings.
//
// Returns:
//   - Config: The default configuration.
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			Root:     "/kaggle/input/fire-smoke-and-neutral/FIRE-SMOKE-DATASET",
			TrainDir: "Train",
			TestDir:  "Test",
		},
		Extractor: ExtractorConfig{
			ModelPath:     "models/vgg16_notop.onnx",
			Backbone:      "vgg16",
			Backend:       "cpu",
			Loader:        "native",
			Interpolation: "nearest",
			InputWidth:    224,
			InputHeight:   224,
		},
		Classifier: ClassifierConfig{
			Solver:    "lbfgs",
			C:         1.0,
			MaxIter:   100,
			Tol:       1e-4,
			LearnRate: 1e-3,
			TestSize:  0.2,
			Seed:      42,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    "features.db",
		},
		Output: OutputConfig{
			ModelPath:      "/kaggle/working/fire_smoke_model.json",
			ReportInterval: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration. An empty path skips the YAML layer. A .env
// file in the working directory, when present, seeds the environment before
// overrides are applied.
//
// Arguments:
//   - path: Optional YAML configuration file.
//
// Returns:
//   - Config: The resolved configuration.
//   - error: If the file cannot be read or parsed, an environment override
//     is malformed, or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parsing config %s", path)
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "loading env file %s", path)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Dataset.Root == "" {
		return errors.New("dataset.root is required")
	}
	if c.Extractor.Backbone == "" {
		return errors.New("extractor.backbone is required")
	}
	if c.Extractor.InputWidth <= 0 || c.Extractor.InputHeight <= 0 {
		return errors.Errorf("invalid extractor input size %dx%d",
			c.Extractor.InputWidth, c.Extractor.InputHeight)
	}
	switch c.Extractor.Loader {
	case "native", "opencv":
	default:
		return errors.Errorf("unknown loader %q", c.Extractor.Loader)
	}
	switch c.Classifier.Solver {
	case "lbfgs", "adam":
	default:
		return errors.Errorf("unknown solver %q", c.Classifier.Solver)
	}
	if c.Classifier.C <= 0 {
		return errors.Errorf("classifier.c must be positive, got %g", c.Classifier.C)
	}
	if c.Classifier.MaxIter <= 0 {
		return errors.Errorf("classifier.max_iter must be positive, got %d", c.Classifier.MaxIter)
	}
	if c.Classifier.TestSize <= 0 || c.Classifier.TestSize >= 1 {
		return errors.Errorf("classifier.test_size must be in (0,1), got %g", c.Classifier.TestSize)
	}
	if c.Output.ModelPath == "" {
		return errors.New("output.model_path is required")
	}
	if c.Output.ReportInterval < 0 {
		return errors.Errorf("output.report_interval must not be negative, got %s", c.Output.ReportInterval)
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return errors.New("cache.path is required when the cache is enabled")
	}
	return nil
}

func applyEnv(c *Config) error {
	var env envReader
	c.Dataset.Root = env.getString("FIRESMOKE_DATASET_ROOT", c.Dataset.Root)
	c.Extractor.ModelPath = env.getString("FIRESMOKE_EXTRACTOR_MODEL", c.Extractor.ModelPath)
	c.Extractor.SharedLibPath = env.getString("FIRESMOKE_ORT_LIB", c.Extractor.SharedLibPath)
	c.Extractor.Backbone = env.getString("FIRESMOKE_BACKBONE", c.Extractor.Backbone)
	c.Extractor.Backend = env.getString("FIRESMOKE_BACKEND", c.Extractor.Backend)
	c.Extractor.Loader = env.getString("FIRESMOKE_LOADER", c.Extractor.Loader)
	c.Extractor.Interpolation = env.getString("FIRESMOKE_INTERPOLATION", c.Extractor.Interpolation)
	c.Classifier.Solver = env.getString("FIRESMOKE_SOLVER", c.Classifier.Solver)
	c.Classifier.C = env.getFloat("FIRESMOKE_C", c.Classifier.C)
	c.Classifier.MaxIter = env.getInt("FIRESMOKE_MAX_ITER", c.Classifier.MaxIter)
	c.Classifier.TestSize = env.getFloat("FIRESMOKE_TEST_SIZE", c.Classifier.TestSize)
	c.Classifier.Seed = int64(env.getInt("FIRESMOKE_SEED", int(c.Classifier.Seed)))
	c.Cache.Enabled = env.getBool("FIRESMOKE_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Path = env.getString("FIRESMOKE_CACHE_PATH", c.Cache.Path)
	c.Output.ModelPath = env.getString("FIRESMOKE_OUTPUT", c.Output.ModelPath)
	c.Output.ReportInterval = env.getDuration("FIRESMOKE_REPORT_INTERVAL", c.Output.ReportInterval)
	c.LogLevel = env.getString("FIRESMOKE_LOG_LEVEL", c.LogLevel)
	return env.err
}

// envReader reads typed overrides and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = errors.Wrapf(err, "invalid %s=%q", key, value)
	}
}

func (r *envReader) getString(key, fallback string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return fallback
}

func (r *envReader) getFloat(key string, fallback float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return f
}

func (r *envReader) getInt(key string, fallback int) int {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return i
}

func (r *envReader) getBool(key string, fallback bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return b
}

func (r *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return d
}
