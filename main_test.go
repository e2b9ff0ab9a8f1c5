package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lon9/acnet-go/acnet"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions([]string{"-w", "x2.pth", "-i", "baby.png"})
	require.NoError(t, err)
	assert.Equal(t, "x2.pth", opts.WeightsFile)
	assert.Equal(t, "baby.png", opts.ImageFile)
	assert.Equal(t, 2, opts.Scale)
	assert.Equal(t, 60, opts.Quality)
	assert.Equal(t, 760, opts.Top)
	assert.Equal(t, 160, opts.Left)
	assert.Equal(t, 100, opts.SideLen)
	assert.Equal(t, "native", opts.Backend)
	assert.Equal(t, "nfnt", opts.Resampler)
	assert.False(t, opts.Compress)
	assert.False(t, opts.Crop)
}

func TestParseOptionsRequired(t *testing.T) {
	_, err := parseOptions([]string{"-i", "baby.png"})
	assert.ErrorContains(t, err, "--weights-file")

	_, err = parseOptions([]string{"-w", "x2.pth"})
	assert.ErrorContains(t, err, "--image-file")

	_, err = parseOptions([]string{"-i", "baby.png", "--backend", "onnx"})
	assert.ErrorContains(t, err, "--onnx-model")

	_, err = parseOptions([]string{"-w", "x2.pth", "-i", "baby.png", "--device", "tpu"})
	assert.Error(t, err)
}

func TestParseOptionsSideLen(t *testing.T) {
	opts, err := parseOptions([]string{"-w", "x2.pth", "-i", "baby.png", "--crop", "--side_len", "50"})
	require.NoError(t, err)
	assert.True(t, opts.Crop)
	assert.Equal(t, 50, opts.SideLen)
}

func TestParseOptionsDevice(t *testing.T) {
	_, err := parseOptions([]string{"-w", "x2.pth", "-i", "baby.png", "--device", "cuda"})
	assert.ErrorContains(t, err, "--backend=onnx")

	opts, err := parseOptions([]string{"-w", "x2.pth", "-i", "baby.png", "--device", "cpu"})
	require.NoError(t, err)
	assert.Equal(t, "cpu", opts.Device)

	opts, err = parseOptions([]string{"-i", "baby.png", "--backend", "onnx", "--onnx-model", "acnet.onnx", "--device", "cuda"})
	require.NoError(t, err)
	assert.Equal(t, "cuda", opts.Device)
}

func TestParseOptionsConfigFile(t *testing.T) {
	ini := filepath.Join(t.TempDir(), "acnet.ini")
	require.NoError(t, os.WriteFile(ini, []byte("[Application Options]\nweights-file = x3.safetensors\nscale = 3\ncompress = true\nquality = 30\n"), 0o644))

	opts, err := parseOptions([]string{"--config", ini, "-i", "baby.png", "--quality", "40"})
	require.NoError(t, err)
	assert.Equal(t, "x3.safetensors", opts.WeightsFile)
	assert.Equal(t, 3, opts.Scale)
	assert.True(t, opts.Compress)
	assert.Equal(t, 40, opts.Quality)
}

func TestNewUpscalerExport(t *testing.T) {
	dir := t.TempDir()
	m, err := acnet.New(acnet.Config{Scale: 2, Features: 2, Depth: 2})
	require.NoError(t, err)
	weights := filepath.Join(dir, "x2.safetensors")
	require.NoError(t, acnet.WriteSafetensors(weights, m.StateDict()))

	opts := &Options{
		WeightsFile:   weights,
		Scale:         2,
		Features:      2,
		Depth:         2,
		Backend:       "native",
		ExportWeights: filepath.Join(dir, "export.safetensors"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	up, closeFn, err := newUpscaler(opts, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, 2, up.Scale())
	assert.FileExists(t, opts.ExportWeights)

	// blocks.1 is not part of a single block model.
	opts.Depth = 1
	_, _, err = newUpscaler(opts, logger)
	assert.ErrorIs(t, err, acnet.ErrUnknownParameter)
}
