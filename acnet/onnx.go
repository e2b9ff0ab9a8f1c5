package acnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"
)

// Upscaler maps a (1, H, W) luma tensor to a (1, H*s, W*s) one.
type Upscaler interface {
	Upscale(ctx context.Context, lr *Tensor) (*Tensor, error)
	Scale() int
}

// Device selects where the ONNX backend runs.
type Device string

// Supported devices.
const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ONNXSession runs an exported ACNet graph through ONNX Runtime. The graph
// must take "input" of shape (1, 1, H, W) and return "output" of shape
// (1, 1, H*scale, W*scale).
type ONNXSession struct {
	session *ort.DynamicAdvancedSession
	scale   int
	device  Device
}

// NewONNXSession initializes the runtime from libPath (empty uses the
// platform default) and opens modelPath. For DeviceAuto the CUDA provider is
// tried first and the session falls back to the CPU if it is unavailable.
func NewONNXSession(modelPath, libPath string, scale int, device Device, logger *slog.Logger) (*ONNXSession, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	selected := DeviceCPU
	if device == DeviceAuto || device == DeviceCUDA {
		if err := appendCUDA(options); err != nil {
			if device == DeviceCUDA {
				return nil, fmt.Errorf("CUDA execution provider: %w", err)
			}
			logger.Info("CUDA unavailable, using CPU", "reason", err)
		} else {
			selected = DeviceCUDA
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"output"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	logger.Debug("onnx session ready", "model", modelPath, "device", selected)
	return &ONNXSession{session: session, scale: scale, device: selected}, nil
}

func appendCUDA(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	return options.AppendExecutionProviderCUDA(cuda)
}

// Device reports the device the session was bound to.
func (s *ONNXSession) Device() Device { return s.device }

// Scale returns the upscaling factor of the graph.
func (s *ONNXSession) Scale() int { return s.scale }

// Upscale runs the graph once. ONNX Runtime calls are not interruptible, so
// ctx is only checked before the run.
func (s *ONNXSession) Upscale(ctx context.Context, lr *Tensor) (*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lr.C != 1 {
		return nil, fmt.Errorf("expected 1 channel, got %d: %w", lr.C, ErrShapeMismatch)
	}

	in := make([]float32, len(lr.Data))
	for i, v := range lr.Data {
		in[i] = float32(v)
	}
	input, err := ort.NewTensor(ort.NewShape(1, 1, int64(lr.H), int64(lr.W)), in)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	h, w := lr.H*s.scale, lr.W*s.scale
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, int64(h), int64(w)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := NewTensor(1, h, w)
	for i, v := range output.GetData() {
		out.Data[i] = float64(v)
	}
	return out, nil
}

// Close releases the session and the runtime environment.
func (s *ONNXSession) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
	}
	return errors.Join(err, ort.DestroyEnvironment())
}
