package acnet

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomStateDict(t *testing.T, cfg Config, seed int64) StateDict {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	sd := m.StateDict()
	for name, p := range sd {
		for i := range p.Data {
			p.Data[i] = rng.NormFloat64() * 0.1
		}
		sd[name] = p
	}
	return sd
}

func newTestModel(t *testing.T, cfg Config, seed int64) *Model {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Load(randomStateDict(t, cfg, seed)))
	return m
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	for _, s := range []int{2, 3, 4} {
		assert.NoError(t, Config{Scale: s, Features: 4, Depth: 1}.Validate())
	}
	assert.ErrorIs(t, Config{Scale: 5, Features: 4, Depth: 1}.Validate(), ErrUnsupportedScale)
	assert.Error(t, Config{Scale: 2, Features: 0, Depth: 1}.Validate())
	assert.Error(t, Config{Scale: 2, Features: 4, Depth: 0}.Validate())
}

func TestParameterNames(t *testing.T) {
	m, err := New(Config{Scale: 4, Features: 4, Depth: 2})
	require.NoError(t, err)
	sd := m.StateDict()

	assert.Equal(t, []int{4, 1, 3, 3}, sd["blocks.0.square.weight"].Shape)
	assert.Equal(t, []int{4, 1, 1, 3}, sd["blocks.0.horizontal.weight"].Shape)
	assert.Equal(t, []int{4, 4, 3, 1}, sd["blocks.1.vertical.weight"].Shape)
	assert.Equal(t, []int{16, 4, 3, 3}, sd["upsample.1.weight"].Shape)
	assert.Equal(t, []int{1, 4, 3, 3}, sd["tail.weight"].Shape)
	assert.Equal(t, []int{1}, sd["tail.bias"].Shape)
	assert.Contains(t, sd, "fuse.weight")
	assert.Contains(t, sd, "refine.bias")
}

func TestUpscaleShape(t *testing.T) {
	for _, s := range []int{2, 3, 4} {
		m := newTestModel(t, Config{Scale: s, Features: 4, Depth: 2}, int64(s))
		out, err := m.Upscale(context.Background(), randomTensor(rand.New(rand.NewSource(3)), 1, 5, 6))
		require.NoError(t, err)
		assert.Equal(t, 1, out.C)
		assert.Equal(t, 5*s, out.H)
		assert.Equal(t, 6*s, out.W)
	}
}

func TestUpscaleRejectsColour(t *testing.T) {
	m := newTestModel(t, Config{Scale: 2, Features: 4, Depth: 1}, 1)
	_, err := m.Upscale(context.Background(), NewTensor(3, 4, 4))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFuseIsExact(t *testing.T) {
	cfg := Config{Scale: 2, Features: 6, Depth: 3}
	in := randomTensor(rand.New(rand.NewSource(4)), 1, 8, 7)

	m := newTestModel(t, cfg, 9)
	want, err := m.Upscale(context.Background(), in)
	require.NoError(t, err)

	m.Fuse()
	m.Workers = 4
	got, err := m.Upscale(context.Background(), in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, got.Data, 1e-9)

	assert.Error(t, m.Load(StateDict{}))
}

func TestLoadUnknownParameter(t *testing.T) {
	m, err := New(Config{Scale: 2, Features: 4, Depth: 1})
	require.NoError(t, err)
	err = m.Load(StateDict{"head.weight": {Shape: []int{1}, Data: []float64{1}}})
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.ErrorContains(t, err, "head.weight")
}

func TestLoadShapeMismatch(t *testing.T) {
	m, err := New(Config{Scale: 2, Features: 4, Depth: 1})
	require.NoError(t, err)
	err = m.Load(StateDict{"tail.weight": {Shape: []int{1, 4, 1, 1}, Data: make([]float64, 4)}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadPartial(t *testing.T) {
	m, err := New(Config{Scale: 2, Features: 4, Depth: 1})
	require.NoError(t, err)
	require.NoError(t, m.Load(StateDict{"tail.bias": {Shape: []int{1}, Data: []float64{0.5}}}))
	assert.Equal(t, []float64{0.5}, m.StateDict()["tail.bias"].Data)
	assert.Equal(t, make([]float64, 36), m.StateDict()["tail.weight"].Data)
}

func TestSafetensorsRoundTrip(t *testing.T) {
	cfg := Config{Scale: 3, Features: 4, Depth: 2}
	sd := randomStateDict(t, cfg, 5)
	path := filepath.Join(t.TempDir(), "acnet.safetensors")
	require.NoError(t, WriteSafetensors(path, sd))

	got, err := LoadStateDict(path)
	require.NoError(t, err)
	require.Len(t, got, len(sd))
	for name, p := range sd {
		require.Contains(t, got, name)
		assert.Equal(t, p.Shape, got[name].Shape, name)
		// Stored as F32.
		assert.InDeltaSlice(t, p.Data, got[name].Data, 1e-6, name)
	}

	m, err := New(cfg)
	require.NoError(t, err)
	assert.NoError(t, m.Load(got))
}

func TestLoadJSON(t *testing.T) {
	sd := StateDict{"tail.bias": {Shape: []int{1}, Data: []float64{0.25}}}
	b, err := json.Marshal(sd)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	got, err := LoadStateDict(path)
	require.NoError(t, err)
	assert.Equal(t, sd["tail.bias"].Data, got["tail.bias"].Data)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tail.bias":{"shape":[2],"data":[1]}}`), 0o644))
	_, err = LoadStateDict(bad)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadStateDictFormat(t *testing.T) {
	_, err := LoadStateDict("weights.h5")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadStateDict(filepath.Join(t.TempDir(), "missing.safetensors"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeHalfPrecision(t *testing.T) {
	// 1.0 and -2.0 in IEEE half and bfloat16, little endian.
	f16, err := decodeSafetensor(bytes.NewReader([]byte{0x00, 0x3c, 0x00, 0xc0}), "F16", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, f16)

	bf16, err := decodeSafetensor(bytes.NewReader([]byte{0x80, 0x3f, 0x00, 0xc0}), "BF16", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, bf16)

	_, err = decodeSafetensor(bytes.NewReader(nil), "I8", 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
