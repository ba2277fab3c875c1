// Package providers - onnxruntime execution providers and session options.
package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend identifies the provider.
	Backend() ProviderBackend
	// Apply registers the provider on a set of session options.
	Apply(options *ort.SessionOptions) error
}

// Config selects and configures an execution provider.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend"         yaml:"backend"`
	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string `json:"shared_lib_path" yaml:"shared_lib_path"`
	// IntraOpThreads parallelises work inside a node (0 lets onnxruntime decide).
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelises independent nodes (0 lets onnxruntime decide).
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// ParseBackend converts a case-insensitive name into a ProviderBackend. An
// empty string selects the CPU backend.
func ParseBackend(s string) (ProviderBackend, error) {
	switch ProviderBackend(strings.ToLower(strings.TrimSpace(s))) {
	case "", CPUProviderBackend:
		return CPUProviderBackend, nil
	case CUDAProviderBackend:
		return CUDAProviderBackend, nil
	case CoreMLProviderBackend:
		return CoreMLProviderBackend, nil
	case OpenVINOProviderBackend:
		return OpenVINOProviderBackend, nil
	default:
		return "", fmt.Errorf("unsupported execution provider %q", s)
	}
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unknown.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case "", CPUProviderBackend:
		return NewCPUProvider(), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cfg.CUDA), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(cfg.OpenVINO), nil
	default:
		return nil, fmt.Errorf("no matching provider backend registered: %s", cfg.Backend)
	}
}
