package checkpoint

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/spargo/codec"
	"github.com/hupe1980/spargo/internal/hash"
	"github.com/hupe1980/spargo/space"
)

// Blob layout, little endian:
//
//	magic    [4]byte "SPCK"
//	version  uint16
//	compress uint8
//	codecLen uint8, codec name
//	manLen   uint32, manifest encoded with the named codec
//	rawLen   uint64
//	storeLen uint64, payload compressed with compress
//	crc      uint32 CRC32C of everything before it
//
// The payload holds the residual history as float64 values followed by the
// field data of every slot in manifest order.
const (
	magic   = "SPCK"
	version = 1
)

// Manifest describes a checkpoint.
type Manifest struct {
	Version   int               `json:"version"`
	Iteration int               `json:"iteration"`
	CreatedAt time.Time         `json:"created_at"`
	Slots     []SlotManifest    `json:"slots"`
	Meta      map[string]string `json:"meta,omitempty"`
	// ResidualCount is the number of residual values in the payload.
	ResidualCount int `json:"residual_count"`

	// Residuals is filled from the payload on load.
	Residuals []float64 `json:"-"`
	// Codec and Compression are filled from the header on load.
	Codec       string      `json:"-"`
	Compression Compression `json:"-"`
}

// SlotManifest describes the saved fields of one region.
type SlotManifest struct {
	Lo     []int64         `json:"lo"`
	Hi     []int64         `json:"hi"`
	Fields []FieldManifest `json:"fields"`
}

// FieldManifest locates one field in the payload.
type FieldManifest struct {
	ID     uint32 `json:"id"`
	Entry  string `json:"entry"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// Snapshot is the input of Encode and Store.Save. The caller must have
// waited for pending writes to the snapshot fields.
type Snapshot struct {
	Iteration int
	Residuals []float64
	Regions   []*space.Region
	Fields    []space.FieldID
	Meta      map[string]string
}

func parseEntry(s string) (space.EntryType, bool) {
	for _, e := range []space.EntryType{space.Float32, space.Float64} {
		if e.String() == s {
			return e, true
		}
	}
	return 0, false
}

func entryOf(r *space.Region, fid space.FieldID) (space.EntryType, error) {
	f, ok := r.Field(fid)
	if !ok {
		return 0, fmt.Errorf("checkpoint: region has no field %d", fid)
	}
	switch f.Kind {
	case space.KindFloat64:
		return space.Float64, nil
	case space.KindFloat32:
		return space.Float32, nil
	default:
		return 0, fmt.Errorf("checkpoint: field %d is a %s field, only scalar fields are saved", fid, f.Kind)
	}
}

func appendField(dst []byte, r *space.Region, fid space.FieldID, e space.EntryType) []byte {
	if e == space.Float32 {
		for _, v := range r.Float32s(fid) {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
		return dst
	}
	for _, v := range r.Float64s(fid) {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}

func coords(p space.Point) []int64 { return p.Coords() }

// Encode serializes a snapshot.
func Encode(s Snapshot, c codec.Codec, comp Compression, now time.Time) ([]byte, error) {
	man := Manifest{
		Version:       version,
		Iteration:     s.Iteration,
		CreatedAt:     now.UTC(),
		Meta:          s.Meta,
		ResidualCount: len(s.Residuals),
	}

	payload := make([]byte, 0, 8*len(s.Residuals))
	for _, v := range s.Residuals {
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(v))
	}
	for _, r := range s.Regions {
		b := r.Space().Bounds()
		slot := SlotManifest{Lo: coords(b.Lo), Hi: coords(b.Hi)}
		for _, fid := range s.Fields {
			e, err := entryOf(r, fid)
			if err != nil {
				return nil, err
			}
			off := int64(len(payload))
			payload = appendField(payload, r, fid, e)
			slot.Fields = append(slot.Fields, FieldManifest{
				ID:     uint32(fid),
				Entry:  e.String(),
				Offset: off,
				Length: int64(len(payload)) - off,
			})
		}
		man.Slots = append(man.Slots, slot)
	}

	manBytes, err := c.Marshal(man)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode manifest: %w", err)
	}
	stored, comp, err := compress(payload, comp)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: compress: %w", err)
	}
	name := c.Name()
	if len(name) > math.MaxUint8 {
		return nil, fmt.Errorf("checkpoint: codec name %q too long", name)
	}

	out := make([]byte, 0, 4+2+1+1+len(name)+4+len(manBytes)+8+8+len(stored)+4)
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, version)
	out = append(out, byte(comp), byte(len(name)))
	out = append(out, name...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(manBytes)))
	out = append(out, manBytes...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(stored)))
	out = append(out, stored...)
	out = binary.LittleEndian.AppendUint32(out, hash.CRC32C(out))
	return out, nil
}

// reader consumes a blob front to back and reports truncation as ErrCorrupt.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n uint64, what string) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.buf)) < n {
		r.err = fmt.Errorf("%w: truncated %s", ErrCorrupt, what)
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16(what string) uint16 {
	if b := r.take(2, what); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// Decode validates a blob and returns its manifest and decompressed payload.
func Decode(data []byte) (*Manifest, []byte, error) {
	if len(data) < len(magic)+4 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:len(magic)])
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := hash.CRC32C(body); got != sum {
		return nil, nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, got, sum)
	}

	r := &reader{buf: body[len(magic):]}
	ver := r.u16("version")
	comp := Compression(r.u8("compression"))
	name := string(r.take(uint64(r.u8("codec length")), "codec name"))
	manBytes := r.take(uint64(r.u32("manifest length")), "manifest")
	rawLen := r.u64("payload length")
	stored := r.take(r.u64("stored length"), "payload")
	if r.err != nil {
		return nil, nil, r.err
	}
	if ver != version {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, ver)
	}
	if len(r.buf) != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}

	c, ok := codec.ByName(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, name)
	}
	var man Manifest
	if err := c.Unmarshal(manBytes, &man); err != nil {
		return nil, nil, fmt.Errorf("%w: manifest: %w", ErrCorrupt, err)
	}
	man.Codec, man.Compression = name, comp

	payload, err := decompress(stored, comp, rawLen)
	if err != nil {
		return nil, nil, err
	}
	if uint64(man.ResidualCount)*8 > uint64(len(payload)) {
		return nil, nil, fmt.Errorf("%w: %d residuals do not fit the payload", ErrCorrupt, man.ResidualCount)
	}
	man.Residuals = make([]float64, man.ResidualCount)
	for i := range man.Residuals {
		man.Residuals[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
	}
	for _, s := range man.Slots {
		for _, f := range s.Fields {
			if f.Offset < 0 || f.Length < 0 || uint64(f.Offset+f.Length) > uint64(len(payload)) {
				return nil, nil, fmt.Errorf("%w: field %d outside the payload", ErrCorrupt, f.ID)
			}
		}
	}
	return &man, payload, nil
}

// Restore copies the payload fields into regions. Regions must match the
// manifest slot by slot in bounds, and field by field in entry type.
func Restore(man *Manifest, payload []byte, regions []*space.Region) error {
	if len(regions) != len(man.Slots) {
		return fmt.Errorf("%w: %d regions for %d slots", ErrMismatch, len(regions), len(man.Slots))
	}
	for i, s := range man.Slots {
		r := regions[i]
		b := r.Space().Bounds()
		if !slices.Equal(coords(b.Lo), s.Lo) || !slices.Equal(coords(b.Hi), s.Hi) {
			return fmt.Errorf("%w: slot %d bounds %s, checkpoint has %v..%v", ErrMismatch, i, b, s.Lo, s.Hi)
		}
		for _, f := range s.Fields {
			fid := space.FieldID(f.ID)
			want, ok := parseEntry(f.Entry)
			if !ok {
				return fmt.Errorf("%w: field %d has entry type %q", ErrCorrupt, f.ID, f.Entry)
			}
			got, err := entryOf(r, fid)
			if err != nil || got != want {
				return fmt.Errorf("%w: slot %d field %d is not %s", ErrMismatch, i, f.ID, want)
			}
			if int64(r.Space().Volume())*int64(want.Size()) != f.Length {
				return fmt.Errorf("%w: slot %d field %d holds %d bytes", ErrCorrupt, i, f.ID, f.Length)
			}
			src := payload[f.Offset : f.Offset+f.Length]
			if want == space.Float32 {
				dst := r.Float32s(fid)
				for j := range dst {
					dst[j] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*j:]))
				}
				continue
			}
			dst := r.Float64s(fid)
			for j := range dst {
				dst[j] = math.Float64frombits(binary.LittleEndian.Uint64(src[8*j:]))
			}
		}
	}
	return nil
}
