package providers

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide onnxruntime environment.
var ortEnv struct {
	mu   sync.Mutex
	refs int
}

// InitEnvironment loads the onnxruntime shared library and initialises the
// native environment. Calls are reference counted; each successful call must
// be paired with ReleaseEnvironment.
//
// Arguments:
//   - cfg: Provider configuration carrying the optional library path.
//
// Returns:
//   - error: If the library is missing or initialisation fails.
func InitEnvironment(cfg Config) error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.refs > 0 {
		ortEnv.refs++
		return nil
	}

	libPath, err := SharedLibPath(cfg.SharedLibPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(libPath); err != nil {
		return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	ortEnv.refs = 1
	return nil
}

// ReleaseEnvironment drops one reference and destroys the environment once
// the last holder releases it.
func ReleaseEnvironment() error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.refs == 0 {
		return nil
	}
	ortEnv.refs--
	if ortEnv.refs > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("error destroying ORT environment: %w", err)
	}
	return nil
}

// NewSessionOptions builds session options with the configured thread counts
// and execution provider.
//
// **Note: the caller must Destroy the returned options.**
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: Options ready to pass to a session constructor.
//   - error: If the provider is unknown or cannot be enabled.
func NewSessionOptions(cfg Config) (*ort.SessionOptions, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("error setting inter-op threads: %w", err)
		}
	}

	if err := provider.Apply(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}
