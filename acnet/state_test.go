package acnet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fixtures are written by testdata/make_pth.py in the torch.save zip
// layout. tail.weight is a (1, 2, 3, 3) view with strides (18, 1, 6, 2) over
// the storage 0..17.
func TestLoadTorch(t *testing.T) {
	want := []float64{0, 2, 4, 6, 8, 10, 12, 14, 16, 1, 3, 5, 7, 9, 11, 13, 15, 17}

	for _, name := range []string{"state_dict.pth", "checkpoint.pth"} {
		t.Run(name, func(t *testing.T) {
			sd, err := LoadStateDict(filepath.Join("testdata", name))
			require.NoError(t, err)
			require.Len(t, sd, 2)

			bias := sd["tail.bias"]
			assert.Equal(t, []int{1}, bias.Shape)
			assert.Equal(t, []float64{0.5}, bias.Data)

			weight := sd["tail.weight"]
			assert.Equal(t, []int{1, 2, 3, 3}, weight.Shape)
			assert.Equal(t, want, weight.Data)

			m, err := New(Config{Scale: 2, Features: 2, Depth: 1})
			require.NoError(t, err)
			require.NoError(t, m.Load(sd))
			assert.Equal(t, want, m.StateDict()["tail.weight"].Data)
		})
	}
}

func TestLoadTorchMissingFile(t *testing.T) {
	_, err := LoadStateDict(filepath.Join("testdata", "missing.pth"))
	assert.ErrorContains(t, err, "missing.pth")
}
