// Command firesmoke trains, evaluates and applies the fire/smoke/neutral
// image classifier.
//
// Usage:
//
//	firesmoke train    [-config file] [-log-level level]
//	firesmoke evaluate [-config file] [-log-level level] [-model file] [-split dir]
//	firesmoke predict  [-config file] [-log-level level] [-model file] [-json] image...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/config"
	"github.com/nvr-ai/go-firesmoke/logging"
	"github.com/nvr-ai/go-firesmoke/pipeline"
	"github.com/nvr-ai/go-firesmoke/profiler"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(ctx, os.Args[2:])
	case "evaluate":
		err = runEvaluate(ctx, os.Args[2:])
	case "predict":
		err = runPredict(ctx, os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "firesmoke: unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("firesmoke failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: firesmoke <train|evaluate|predict> [flags] [images...]")
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
}

// load resolves the configuration and initialises logging.
func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func runTrain(ctx context.Context, args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	opts, err := classifierOptions(cfg.Classifier)
	if err != nil {
		return err
	}
	ext, cleanup, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	trainer := pipeline.NewTrainer(pipeline.TrainerConfig{
		Root:           cfg.Dataset.Root,
		TrainDir:       cfg.Dataset.TrainDir,
		TestDir:        cfg.Dataset.TestDir,
		TestSize:       cfg.Classifier.TestSize,
		Seed:           cfg.Classifier.Seed,
		Classifier:     opts,
		OutputPath:     cfg.Output.ModelPath,
		ExtractorModel: cfg.Extractor.ModelPath,
		ReportInterval: cfg.Output.ReportInterval,
	}, ext)

	report, _, err := trainer.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Model Accuracy: %.2f\n\n", report.Accuracy)
	fmt.Println(report.Confusion.String())
	fmt.Println(report.Classification.String())
	for _, p := range report.SamplePredictions {
		fmt.Println(p.Class)
	}
	slog.Info("training complete",
		"run_id", report.RunID,
		"model", report.ModelPath,
		"total", report.Durations.Total,
		"peak_heap", profiler.FormatBytes(report.PeakHeapBytes),
	)
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	var (
		common    commonFlags
		modelPath string
		split     string
	)
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&modelPath, "model", "", "Classifier artifact (defaults to output.model_path)")
	fs.StringVar(&split, "split", "", "Directory under the dataset root to score (defaults to dataset.test_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if modelPath == "" {
		modelPath = cfg.Output.ModelPath
	}
	if split == "" {
		split = cfg.Dataset.TestDir
	}

	model, meta, err := classifier.Load(modelPath)
	if err != nil {
		return err
	}
	slog.Info("classifier loaded", "path", modelPath, "run_id", meta.RunID, "trained_accuracy", meta.Accuracy)

	ext, cleanup, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	eval, err := pipeline.Evaluate(ctx, ext, model, cfg.Dataset.Root, split)
	if err != nil {
		return err
	}
	fmt.Printf("Accuracy on %s: %.4f (%d images)\n\n", split, eval.Accuracy, eval.Samples)
	fmt.Println(eval.Confusion.String())
	fmt.Println(eval.Classification.String())
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	var (
		common    commonFlags
		modelPath string
		asJSON    bool
	)
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&modelPath, "model", "", "Classifier artifact (defaults to output.model_path)")
	fs.BoolVar(&asJSON, "json", false, "Print predictions as JSON lines with class probabilities")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("predict needs at least one image path")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if modelPath == "" {
		modelPath = cfg.Output.ModelPath
	}

	model, _, err := classifier.Load(modelPath)
	if err != nil {
		return err
	}
	ext, cleanup, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	predictor, err := pipeline.NewPredictor(ext, model)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, path := range fs.Args() {
		if !asJSON {
			name, err := predictor.PredictFireSmoke(ctx, path)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", path, name)
			continue
		}
		pred, err := predictor.Predict(ctx, path)
		if err != nil {
			return err
		}
		if err := enc.Encode(pred); err != nil {
			return err
		}
	}
	return nil
}
