package inference

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/nvr-ai/go-firesmoke/inference/providers"
	"github.com/nvr-ai/go-firesmoke/models/model/preprocess"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures an ONNXExtractor.
type ONNXConfig struct {
	// ModelPath is the ONNX export of the headless network.
	ModelPath string
	// Providers selects the execution provider and onnxruntime library.
	Providers providers.Config
	// Preprocess describes the input normalisation. Nil selects VGG16.
	// ChannelOrder is overridden by the layout the model declares.
	Preprocess *preprocess.ModelConfig
	// Loader reads images from disk. Nil selects a NativeLoader sized to the
	// preprocessing input.
	Loader images.Loader
	// LoaderName identifies Loader in the cache key, e.g. "opencv".
	LoaderName string
	// Interpolation used by ExtractImage when an image is not already at the
	// input size.
	Interpolation images.Interpolation
}

// ONNXExtractor runs images through a frozen ONNX network and returns the
// flattened output.
type ONNXExtractor struct {
	mu           sync.Mutex
	session      *Session
	preprocessor *preprocess.Preprocessor
	loader       images.Loader
	interp       images.Interpolation
	dim          int
	key          FeatureKey
}

// NewONNXExtractor initialises onnxruntime, inspects the model and binds a
// session with preallocated tensors.
//
// Arguments:
//   - cfg: Extractor configuration.
//
// Returns:
//   - *ONNXExtractor: The extractor. Close must be called to release it.
//   - error: If the model cannot be inspected or the session cannot be created.
func NewONNXExtractor(cfg ONNXConfig) (*ONNXExtractor, error) {
	pcfg := preprocess.VGG16Config()
	if cfg.Preprocess != nil {
		c := *cfg.Preprocess
		pcfg = &c
	}
	if cfg.Interpolation == "" {
		cfg.Interpolation = images.InterpolationNearest
	}

	if err := providers.InitEnvironment(cfg.Providers); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		providers.ReleaseEnvironment()
		return nil, errors.Wrapf(err, "failed to read model info from %s", cfg.ModelPath)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		providers.ReleaseEnvironment()
		return nil, errors.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	inputShape, order, err := ResolveInputShape(inputs[0].Dimensions, pcfg.InputWidth, pcfg.InputHeight, pcfg.InputChannels)
	if err != nil {
		providers.ReleaseEnvironment()
		return nil, err
	}
	pcfg.ChannelOrder = order

	outputShape, dim, err := ResolveOutputShape(outputs[0].Dimensions)
	if err != nil {
		providers.ReleaseEnvironment()
		return nil, err
	}

	preprocessor, err := preprocess.NewPreprocessor(pcfg)
	if err != nil {
		providers.ReleaseEnvironment()
		return nil, err
	}

	loader, loaderName := cfg.Loader, cfg.LoaderName
	if loader != nil && loaderName == "" {
		loaderName = fmt.Sprintf("%T", loader)
	}
	if loader == nil {
		loaderName = "native"
		loader, err = images.NewNativeLoader(images.Options{
			Width:         pcfg.InputWidth,
			Height:        pcfg.InputHeight,
			Interpolation: cfg.Interpolation,
		})
		if err != nil {
			providers.ReleaseEnvironment()
			return nil, err
		}
	}

	session, err := NewSession(
		cfg.ModelPath,
		inputs[0].Name,
		outputs[0].Name,
		ort.NewShape(inputShape...),
		ort.NewShape(outputShape...),
		cfg.Providers,
	)
	if err != nil {
		providers.ReleaseEnvironment()
		return nil, err
	}

	slog.Info("feature extractor ready",
		"model", cfg.ModelPath,
		"input", inputs[0].Name,
		"input_shape", inputShape,
		"output", outputs[0].Name,
		"output_shape", outputShape,
		"dim", dim,
		"backend", cfg.Providers.Backend,
	)

	return &ONNXExtractor{
		session:      session,
		preprocessor: preprocessor,
		loader:       loader,
		interp:       cfg.Interpolation,
		dim:          dim,
		key: FeatureKey{
			ModelPath:     cfg.ModelPath,
			Backbone:      pcfg.Name,
			Loader:        loaderName,
			Interpolation: cfg.Interpolation,
			Width:         pcfg.InputWidth,
			Height:        pcfg.InputHeight,
		},
	}, nil
}

// Extract loads the image at path and returns its feature vector.
func (e *ONNXExtractor) Extract(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := e.loader.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	vec, err := e.ExtractImage(ctx, img)
	if err != nil {
		return nil, errors.Wrapf(err, "extract %s", path)
	}
	return vec, nil
}

// ExtractImage returns the feature vector of an in-memory image. Images not
// at the input size are resized first.
func (e *ONNXExtractor) ExtractImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := e.preprocessor.Config()
	img = images.Resize(img, cfg.InputWidth, cfg.InputHeight, e.interp)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("extractor is closed")
	}
	if err := e.preprocessor.PreprocessInto(img, e.session.Input.GetData()); err != nil {
		return nil, err
	}
	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	// Copy out before the next run overwrites the tensor.
	out := e.session.Output.GetData()
	vec := make([]float32, len(out))
	copy(vec, out)
	return vec, nil
}

// Dim returns the feature vector length.
func (e *ONNXExtractor) Dim() int {
	return e.dim
}

// ModelKey identifies the network and its input settings for cache scoping.
func (e *ONNXExtractor) ModelKey() string {
	return e.key.String()
}

// Stats returns the session run statistics.
func (e *ONNXExtractor) Stats() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return SessionStats{}
	}
	return e.session.Stats()
}

// Close destroys the session and releases the onnxruntime environment.
func (e *ONNXExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	stats := e.session.Stats()
	slog.Debug("feature extractor closed", "runs", stats.Runs, "mean", stats.Mean)
	e.session.Close()
	e.session = nil
	return providers.ReleaseEnvironment()
}

// ResolveInputShape turns the declared input dimensions into a concrete
// single-image shape and reports the channel layout. Dynamic dimensions
// (<= 0) take the batch size 1 or the configured spatial size.
//
// Arguments:
//   - dims: Declared input dimensions, rank 4.
//   - width: Configured input width.
//   - height: Configured input height.
//   - channels: Configured channel count.
//
// Returns:
//   - []int64: The concrete shape.
//   - preprocess.ChannelOrder: HWC for [N,H,W,C], CHW for [N,C,H,W].
//   - error: If the layout cannot be determined or conflicts with the configuration.
func ResolveInputShape(dims []int64, width, height, channels int) ([]int64, preprocess.ChannelOrder, error) {
	if len(dims) != 4 {
		return nil, 0, errors.Errorf("expected a rank-4 image input, got %v", dims)
	}
	c := int64(channels)

	var (
		order    preprocess.ChannelOrder
		expected []int64
	)
	switch {
	case dims[3] == c:
		order = preprocess.ChannelOrderHWC
		expected = []int64{1, int64(height), int64(width), c}
	case dims[1] == c:
		order = preprocess.ChannelOrderCHW
		expected = []int64{1, c, int64(height), int64(width)}
	default:
		return nil, 0, errors.Errorf("cannot find a %d-channel axis in input %v", channels, dims)
	}

	shape := make([]int64, 4)
	for i, d := range dims {
		if d <= 0 {
			shape[i] = expected[i]
			continue
		}
		if i == 0 && d != 1 {
			return nil, 0, errors.Errorf("fixed batch size %d is not supported", d)
		}
		if d != expected[i] {
			return nil, 0, errors.Errorf("model input %v does not accept %dx%dx%d images", dims, width, height, channels)
		}
		shape[i] = d
	}
	return shape, order, nil
}

// ResolveOutputShape fixes a dynamic batch dimension to 1 and returns the
// flattened per-image feature length.
func ResolveOutputShape(dims []int64) ([]int64, int, error) {
	if len(dims) < 2 {
		return nil, 0, errors.Errorf("expected a batched output, got %v", dims)
	}
	shape := make([]int64, len(dims))
	shape[0] = 1
	if dims[0] > 1 {
		return nil, 0, errors.Errorf("fixed batch size %d is not supported", dims[0])
	}
	dim := 1
	for i := 1; i < len(dims); i++ {
		if dims[i] <= 0 {
			return nil, 0, errors.Errorf("output dimension %d of %v is dynamic", i, dims)
		}
		shape[i] = dims[i]
		dim *= int(dims[i])
	}
	return shape, dim, nil
}
