package acnet

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestONNXSession needs a runtime library and an exported x2 graph:
//
//	ONNXRUNTIME_LIB=/usr/lib/libonnxruntime.so ACNET_ONNX_MODEL=acnet_x2.onnx go test ./acnet
func TestONNXSession(t *testing.T) {
	lib, model := os.Getenv("ONNXRUNTIME_LIB"), os.Getenv("ACNET_ONNX_MODEL")
	if lib == "" || model == "" {
		t.Skip("ONNXRUNTIME_LIB and ACNET_ONNX_MODEL not set")
	}

	s, err := NewONNXSession(model, lib, 2, DeviceCPU, slog.Default())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DeviceCPU, s.Device())

	out, err := s.Upscale(context.Background(), randomTensor(rand.New(rand.NewSource(1)), 1, 16, 12))
	require.NoError(t, err)
	assert.Equal(t, 32, out.H)
	assert.Equal(t, 24, out.W)
}
