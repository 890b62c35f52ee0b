package checkpoint_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spargo/blobstore"
	"github.com/hupe1980/spargo/checkpoint"
	"github.com/hupe1980/spargo/codec"
	"github.com/hupe1980/spargo/resource"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	fidX space.FieldID = 0
	fidR space.FieldID = 1
)

func workspace(n64, n32 int64) []*space.Region {
	return []*space.Region{
		space.NewRegion(space.Line(n64), space.Scalar(fidX, space.Float64), space.Scalar(fidR, space.Float64)),
		space.NewRegion(space.Line(n32), space.Scalar(fidX, space.Float32), space.Scalar(fidR, space.Float32)),
	}
}

func fill(ws []*space.Region, seed int64) {
	rng := testutil.NewRNG(seed)
	for _, r := range ws {
		for _, fid := range []space.FieldID{fidX, fidR} {
			if f, _ := r.Field(fid); f.Kind == space.KindFloat32 {
				dst := r.Float32s(fid)
				for i, v := range rng.Float64s(len(dst)) {
					dst[i] = float32(v)
				}
				continue
			}
			copy(r.Float64s(fid), rng.Float64s(int(r.Space().Volume())))
		}
	}
}

func snapshot(ws []*space.Region) checkpoint.Snapshot {
	return checkpoint.Snapshot{
		Iteration: 7,
		Residuals: []float64{5, 1.25, math.NaN(), 0},
		Regions:   ws,
		Fields:    []space.FieldID{fidX, fidR},
		Meta:      map[string]string{"format": "coo"},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for _, comp := range []checkpoint.Compression{checkpoint.CompressionNone, checkpoint.CompressionLZ4, checkpoint.CompressionZstd} {
		for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
			t.Run(comp.String()+"/"+c.Name(), func(t *testing.T) {
				st := checkpoint.New(blobstore.NewMemoryStore(), checkpoint.WithCompression(comp), checkpoint.WithCodec(c))
				src := workspace(64, 33)
				fill(src, 1)
				name := checkpoint.Name("run/", 7)
				require.NoError(t, st.Save(t.Context(), name, snapshot(src)))

				dst := workspace(64, 33)
				man, err := st.Load(t.Context(), name, dst)
				require.NoError(t, err)

				assert.Equal(t, 7, man.Iteration)
				assert.Equal(t, c.Name(), man.Codec)
				assert.Equal(t, "coo", man.Meta["format"])
				require.Len(t, man.Residuals, 4)
				assert.Equal(t, []float64{5, 1.25}, man.Residuals[:2])
				assert.True(t, math.IsNaN(man.Residuals[2]))
				for i := range src {
					for _, fid := range []space.FieldID{fidX, fidR} {
						if i == 0 {
							assert.Equal(t, src[i].Float64s(fid), dst[i].Float64s(fid))
						} else {
							assert.Equal(t, src[i].Float32s(fid), dst[i].Float32s(fid))
						}
					}
				}
			})
		}
	}
}

func TestStore_LZ4FallsBackOnIncompressible(t *testing.T) {
	src := workspace(16, 4)
	fill(src, 2)
	data, err := checkpoint.Encode(snapshot(src), codec.Default, checkpoint.CompressionLZ4, epoch)
	require.NoError(t, err)
	man, _, err := checkpoint.Decode(data)
	require.NoError(t, err)
	assert.Contains(t, []checkpoint.Compression{checkpoint.CompressionNone, checkpoint.CompressionLZ4}, man.Compression)
}

func TestStore_ZeroFieldsCompress(t *testing.T) {
	ws := workspace(4096, 1)
	s := checkpoint.Snapshot{Regions: ws, Fields: []space.FieldID{fidX}}
	raw, err := checkpoint.Encode(s, codec.Default, checkpoint.CompressionNone, epoch)
	require.NoError(t, err)
	for _, comp := range []checkpoint.Compression{checkpoint.CompressionLZ4, checkpoint.CompressionZstd} {
		packed, err := checkpoint.Encode(s, codec.Default, comp, epoch)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(raw)/4, comp.String())
	}
}

func TestDecode_Corrupt(t *testing.T) {
	src := workspace(32, 8)
	fill(src, 3)
	data, err := checkpoint.Encode(snapshot(src), codec.Default, checkpoint.CompressionZstd, epoch)
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     {},
		"bad magic": append([]byte("XXXX"), data[4:]...),
		"truncated": data[:len(data)/2],
		"bit flip": func() []byte {
			b := append([]byte(nil), data...)
			b[len(b)/2] ^= 0x10
			return b
		}(),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := checkpoint.Decode(b)
			assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
		})
	}
}

func TestLoad_Mismatch(t *testing.T) {
	st := checkpoint.New(blobstore.NewMemoryStore())
	src := workspace(16, 8)
	require.NoError(t, st.Save(t.Context(), "a", snapshot(src)))

	t.Run("bounds", func(t *testing.T) {
		_, err := st.Load(t.Context(), "a", workspace(17, 8))
		assert.ErrorIs(t, err, checkpoint.ErrMismatch)
	})
	t.Run("slots", func(t *testing.T) {
		_, err := st.Load(t.Context(), "a", workspace(16, 8)[:1])
		assert.ErrorIs(t, err, checkpoint.ErrMismatch)
	})
	t.Run("entry type", func(t *testing.T) {
		ws := workspace(16, 8)
		ws[1] = space.NewRegion(space.Line(8), space.Scalar(fidX, space.Float64), space.Scalar(fidR, space.Float64))
		_, err := st.Load(t.Context(), "a", ws)
		assert.ErrorIs(t, err, checkpoint.ErrMismatch)
	})
	t.Run("manifest only", func(t *testing.T) {
		man, err := st.Load(t.Context(), "a", nil)
		require.NoError(t, err)
		assert.Len(t, man.Slots, 2)
	})
}

func TestLoad_NotFound(t *testing.T) {
	st := checkpoint.New(blobstore.NewMemoryStore())
	_, err := st.Load(t.Context(), "missing", nil)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = st.Latest(t.Context(), "run/")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStore_LatestAndPrune(t *testing.T) {
	blobs := blobstore.NewLocalStore(t.TempDir())
	st := checkpoint.New(blobs, checkpoint.WithController(resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})))
	src := workspace(8, 8)
	for _, it := range []int{10, 2, 30, 4} {
		s := snapshot(src)
		s.Iteration = it
		require.NoError(t, st.Save(t.Context(), checkpoint.Name("run/", it), s))
	}
	require.NoError(t, blobs.Put(t.Context(), "run/notes.txt", []byte("x")))

	latest, err := st.Latest(t.Context(), "run/")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Name("run/", 30), latest)

	require.NoError(t, st.Prune(t.Context(), "run/", 2))
	names, err := st.List(t.Context(), "run/")
	require.NoError(t, err)
	assert.Equal(t, []string{checkpoint.Name("run/", 10), checkpoint.Name("run/", 30)}, names)

	all, err := blobs.List(t.Context(), "run/")
	require.NoError(t, err)
	assert.Contains(t, all, "run/notes.txt")
}

func TestParseName(t *testing.T) {
	it, ok := checkpoint.ParseName(checkpoint.Name("a/b/", 123))
	assert.True(t, ok)
	assert.Equal(t, 123, it)

	for _, n := range []string{"ckpt-x.spck", "ckpt-1.bin", "other"} {
		_, ok := checkpoint.ParseName(n)
		assert.False(t, ok, n)
	}
}

type failingStore struct {
	blobstore.Store
	aborted bool
}

type failingBlob struct{ s *failingStore }

func (b failingBlob) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (b failingBlob) Close() error              { return nil }
func (b failingBlob) Abort() error              { b.s.aborted = true; return nil }

func (s *failingStore) Create(context.Context, string) (blobstore.WritableBlob, error) {
	return failingBlob{s}, nil
}

func TestSave_AbortsOnWriteError(t *testing.T) {
	fs := &failingStore{Store: blobstore.NewMemoryStore()}
	st := checkpoint.New(fs)
	err := st.Save(t.Context(), "x", snapshot(workspace(4, 4)))
	require.Error(t, err)
	assert.True(t, fs.aborted)

	_, err = fs.Get(t.Context(), "x")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
