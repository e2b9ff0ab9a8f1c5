package acnet

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"
	"golang.org/x/exp/maps"
)

// Param is a named tensor of a state dict.
type Param struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`

	optional bool
}

// StateDict maps parameter names to tensors.
type StateDict map[string]Param

// maxHeaderSize bounds the JSON header of a safetensors file.
const maxHeaderSize = 100 << 20

// LoadStateDict reads a weight file. The format is chosen by extension:
// .pth/.pt/.bin (PyTorch pickle), .safetensors, or .json.
func LoadStateDict(path string) (StateDict, error) {
	var (
		sd  StateDict
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pth", ".pt", ".bin":
		sd, err = readTorch(path)
	case ".safetensors":
		sd, err = readSafetensors(path)
	case ".json":
		sd, err = readJSON(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("load weights %s: %w", path, err)
	}
	return sd, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func readTorch(path string) (StateDict, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	entries, err := dictEntries(obj)
	if err != nil {
		return nil, err
	}
	// Training checkpoints nest the weights under "state_dict".
	if nested, ok := entries["state_dict"]; ok {
		if entries, err = dictEntries(nested); err != nil {
			return nil, err
		}
	}

	sd := make(StateDict, len(entries))
	for name, v := range entries {
		t, ok := v.(*pytorch.Tensor)
		if !ok {
			return nil, fmt.Errorf("%q is %T, not a tensor: %w", name, v, ErrUnsupportedFormat)
		}
		data, err := torchData(t)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		sd[name] = Param{Shape: slices.Clone(t.Size), Data: data}
	}
	return sd, nil
}

func dictEntries(obj interface{}) (map[string]interface{}, error) {
	entries := make(map[string]interface{})
	switch d := obj.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if k, ok := entry.Key.(string); ok {
				entries[k] = entry.Value
			}
		}
	case *types.Dict:
		for _, k := range d.Keys() {
			if s, ok := k.(string); ok {
				entries[s] = d.MustGet(k)
			}
		}
	default:
		return nil, fmt.Errorf("object is %T, not a dict: %w", obj, ErrUnsupportedFormat)
	}
	return entries, nil
}

// torchData gathers a possibly strided tensor into a contiguous slice.
func torchData(t *pytorch.Tensor) ([]float64, error) {
	var at func(int) float64
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		at = func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.HalfStorage:
		at = func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.DoubleStorage:
		at = func(i int) float64 { return s.Data[i] }
	default:
		return nil, fmt.Errorf("storage %T: %w", t.Source, ErrUnsupportedFormat)
	}

	n := numel(t.Size)
	out := make([]float64, n)
	idx := make([]int, len(t.Size))
	for i := 0; i < n; i++ {
		off := t.StorageOffset
		for d := range idx {
			off += idx[d] * t.Stride[d]
		}
		out[i] = at(off)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

type safetensorInfo struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

func readSafetensors(path string) (StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var n uint64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read header size: %w", err)
	}
	if n > maxHeaderSize {
		return nil, fmt.Errorf("header size %d too large: %w", n, ErrUnsupportedFormat)
	}
	header := make([]byte, n)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	base := int64(8 + n)
	sd := make(StateDict, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}
		var info safetensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		size := info.Offsets[1] - info.Offsets[0]
		if size < 0 {
			return nil, fmt.Errorf("tensor %q has offsets %v: %w", name, info.Offsets, ErrUnsupportedFormat)
		}
		data, err := decodeSafetensor(io.NewSectionReader(f, base+info.Offsets[0], size), info.DType, size)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if len(data) != numel(info.Shape) {
			return nil, fmt.Errorf("tensor %q holds %d values for shape %v: %w", name, len(data), info.Shape, ErrShapeMismatch)
		}
		sd[name] = Param{Shape: info.Shape, Data: data}
	}
	return sd, nil
}

func decodeSafetensor(r io.Reader, dtype string, size int64) ([]float64, error) {
	var out []float64
	switch dtype {
	case "F32":
		f32s := make([]float32, size/4)
		if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}
		out = make([]float64, len(f32s))
		for i, v := range f32s {
			out[i] = float64(v)
		}
	case "F64":
		out = make([]float64, size/8)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(r, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}
		out = make([]float64, len(u16s))
		for i, u := range u16s {
			out[i] = float64(float16.Frombits(u).Float32())
		}
	case "BF16":
		u8s := make([]byte, size)
		if _, err := io.ReadFull(r, u8s); err != nil {
			return nil, err
		}
		f32s := bfloat16.DecodeFloat32(u8s)
		out = make([]float64, len(f32s))
		for i, v := range f32s {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("dtype %s: %w", dtype, ErrUnsupportedFormat)
	}
	return out, nil
}

// WriteSafetensors stores sd as F32 tensors in safetensors layout.
func WriteSafetensors(path string, sd StateDict) (err error) {
	names := maps.Keys(sd)
	slices.Sort(names)

	header := make(map[string]safetensorInfo, len(names))
	var offset int64
	for _, name := range names {
		p := sd[name]
		if len(p.Data) != numel(p.Shape) {
			return fmt.Errorf("tensor %q holds %d values for shape %v: %w", name, len(p.Data), p.Shape, ErrShapeMismatch)
		}
		size := int64(4 * len(p.Data))
		header[name] = safetensorInfo{DType: "F32", Shape: p.Shape, Offsets: [2]int64{offset, offset + size}}
		offset += size
	}
	h, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// Tensor data starts 8-byte aligned.
	if pad := len(h) % 8; pad != 0 {
		h = append(h, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(h))); err != nil {
		return err
	}
	if _, err := w.Write(h); err != nil {
		return err
	}
	for _, name := range names {
		var buf [4]byte
		for _, v := range sd[name].Data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func readJSON(path string) (StateDict, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sd StateDict
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	for name, p := range sd {
		if len(p.Data) != numel(p.Shape) {
			return nil, fmt.Errorf("tensor %q holds %d values for shape %v: %w", name, len(p.Data), p.Shape, ErrShapeMismatch)
		}
	}
	return sd, nil
}
