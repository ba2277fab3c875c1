package providers

import (
	"fmt"
	"os"
	"runtime"
)

// SharedLibEnv names the environment variable consulted for the onnxruntime
// shared library when no explicit path is configured.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// DefaultSharedLibPath returns the conventional location of the onnxruntime
// shared library for a platform.
//
// Arguments:
//   - goos: Target operating system (runtime.GOOS).
//   - goarch: Target architecture (runtime.GOARCH).
//
// Returns:
//   - string: The library path.
//   - error: If the platform has no known default.
func DefaultSharedLibPath(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", fmt.Errorf("no onnxruntime library default for %s/%s", goos, goarch)
}

// SharedLibPath resolves the onnxruntime shared library: the explicit path if
// set, then $ONNXRUNTIME_SHARED_LIBRARY_PATH, then the platform default.
func SharedLibPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(SharedLibEnv); env != "" {
		return env, nil
	}
	return DefaultSharedLibPath(runtime.GOOS, runtime.GOARCH)
}
