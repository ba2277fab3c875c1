package main

import (
	"log/slog"

	"github.com/nvr-ai/go-firesmoke/classifier"
	"github.com/nvr-ai/go-firesmoke/config"
	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/nvr-ai/go-firesmoke/images/opencv"
	"github.com/nvr-ai/go-firesmoke/inference"
	"github.com/nvr-ai/go-firesmoke/inference/providers"
	"github.com/nvr-ai/go-firesmoke/models"
	"github.com/nvr-ai/go-firesmoke/store"
)

// newLoader builds the configured image loader.
func newLoader(cfg config.ExtractorConfig) (images.Loader, images.Interpolation, error) {
	interp, err := images.ParseInterpolation(cfg.Interpolation)
	if err != nil {
		return nil, "", err
	}
	opts := images.Options{
		Width:         cfg.InputWidth,
		Height:        cfg.InputHeight,
		Interpolation: interp,
	}
	if cfg.Loader == "opencv" {
		l, err := opencv.NewLoader(opts)
		return l, interp, err
	}
	l, err := images.NewNativeLoader(opts)
	return l, interp, err
}

// newExtractor builds the ONNX feature extractor, wrapped with the feature
// cache when enabled. The returned cleanup closes the cache after the
// extractor.
func newExtractor(cfg config.Config) (inference.FeatureExtractor, func(), error) {
	backend, err := providers.ParseBackend(cfg.Extractor.Backend)
	if err != nil {
		return nil, nil, err
	}
	loader, interp, err := newLoader(cfg.Extractor)
	if err != nil {
		return nil, nil, err
	}

	backbone, err := models.Lookup(cfg.Extractor.Backbone)
	if err != nil {
		return nil, nil, err
	}
	pcfg := backbone.Preprocess(cfg.Extractor.InputWidth, cfg.Extractor.InputHeight)

	onnx, err := inference.NewONNXExtractor(inference.ONNXConfig{
		ModelPath: cfg.Extractor.ModelPath,
		Providers: providers.Config{
			Backend:        backend,
			SharedLibPath:  cfg.Extractor.SharedLibPath,
			IntraOpThreads: cfg.Extractor.IntraOpThreads,
			InterOpThreads: cfg.Extractor.InterOpThreads,
		},
		Preprocess:    pcfg,
		Loader:        loader,
		LoaderName:    cfg.Extractor.Loader,
		Interpolation: interp,
	})
	if err != nil {
		return nil, nil, err
	}
	if want := backbone.FeatureDim(pcfg.InputWidth, pcfg.InputHeight); onnx.Dim() != want {
		slog.Warn("feature length differs from the backbone default",
			"backbone", backbone.Name, "dim", onnx.Dim(), "expected", want)
	}

	if !cfg.Cache.Enabled {
		return onnx, func() { onnx.Close() }, nil
	}

	cache, err := store.Open(cfg.Cache.Path)
	if err != nil {
		onnx.Close()
		return nil, nil, err
	}
	slog.Info("feature cache enabled", "path", cfg.Cache.Path, "scope", onnx.ModelKey())
	cached := inference.NewCachedExtractor(onnx, cache, onnx.ModelKey())
	return cached, func() {
		cached.Close()
		cache.Close()
	}, nil
}

// classifierOptions maps the configuration onto solver options.
func classifierOptions(cfg config.ClassifierConfig) (classifier.Options, error) {
	solver, err := classifier.ParseSolver(cfg.Solver)
	if err != nil {
		return classifier.Options{}, err
	}
	return classifier.Options{
		C:         cfg.C,
		MaxIter:   cfg.MaxIter,
		Tol:       cfg.Tol,
		Solver:    solver,
		LearnRate: cfg.LearnRate,
	}, nil
}
