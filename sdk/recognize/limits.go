package recognize

import (
	"bytes"
	"fmt"
	"image"

	// Decoders for the formats the service accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// CheckImageLimits validates an image against the thresholds of mode. The
// file size is checked first so oversized payloads are rejected without
// decoding them. Failures are reported as *LimitError.
func CheckImageLimits(data []byte, mode Mode) error {
	limits := LimitsFor(mode)

	fileSizeKB := float64(len(data)) / 1000.0
	if fileSizeKB > limits.MaxFileSizeKB {
		return &LimitError{Mode: mode, Reason: fmt.Sprintf("file size %.1fKB above %.1fKB", fileSizeKB, limits.MaxFileSizeKB)}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &LimitError{Mode: mode, Reason: fmt.Sprintf("cannot read image dimensions: %v", err)}
	}

	if cfg.Width < limits.MinDimension || cfg.Height < limits.MinDimension {
		return &LimitError{Mode: mode, Reason: fmt.Sprintf("dimensions %dx%d below %dpx", cfg.Width, cfg.Height, limits.MinDimension)}
	}

	surface := float64(cfg.Width*cfg.Height) / 1000000.0
	if surface < limits.MinSurfaceMpx {
		return &LimitError{Mode: mode, Reason: fmt.Sprintf("surface %.2fMpx below %.2fMpx", surface, limits.MinSurfaceMpx)}
	}
	if surface > limits.MaxSurfaceMpx {
		return &LimitError{Mode: mode, Reason: fmt.Sprintf("surface %.2fMpx above %.2fMpx", surface, limits.MaxSurfaceMpx)}
	}
	return nil
}
