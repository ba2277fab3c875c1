// Package inference - Feature extraction with a frozen network.
package inference

import (
	"fmt"
	"sync"
	"time"

	"github.com/nvr-ai/go-firesmoke/inference/providers"
	ort "github.com/yalue/onnxruntime_go"
)

// Session binds one preallocated input and output tensor to an onnxruntime
// session and tracks how long each run takes.
type Session struct {
	session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]

	mu       sync.Mutex
	runCount int64
	runTime  time.Duration
}

// SessionStats summarises the runs of a Session.
type SessionStats struct {
	Runs  int64
	Total time.Duration
	Mean  time.Duration
}

// NewSession creates a session with float32 tensors of the given shapes.
//
// Arguments:
//   - modelPath: Path to the ONNX model file.
//   - inputName: Name of the model input.
//   - outputName: Name of the model output.
//   - inputShape: Concrete input shape (no dynamic dimensions).
//   - outputShape: Concrete output shape (no dynamic dimensions).
//   - cfg: Execution provider configuration.
//
// Returns:
//   - *Session: The bound session.
//   - error: Session creation error if any.
func NewSession(
	modelPath string,
	inputName string,
	outputName string,
	inputShape ort.Shape,
	outputShape ort.Shape,
	cfg providers.Config,
) (*Session, error) {
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := providers.NewSessionOptions(cfg)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{session: session, Input: input, Output: output}, nil
}

// Run executes the model on the current contents of Input.
func (s *Session) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.session.Run()
	s.runCount++
	s.runTime += time.Since(start)
	return err
}

// Stats returns the accumulated run statistics.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SessionStats{Runs: s.runCount, Total: s.runTime}
	if s.runCount > 0 {
		stats.Mean = s.runTime / time.Duration(s.runCount)
	}
	return stats
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}
