package corpus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferRoundTrips(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		in := []float32{1.5, -2.25, 0, 3e8}
		if diff := cmp.Diff(FromFloat32s(in).Float32s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("float16", func(t *testing.T) {
		in := []float32{1.5, -2.25, 0, 64}
		got := FromFloat16s(in).Float16s()
		for i, v := range in {
			if f := got[i].Float32(); f != v {
				t.Errorf("index %d: expected %v, got %v", i, v, f)
			}
		}
	})

	t.Run("int32", func(t *testing.T) {
		in := []int32{-1, 0, 1, 1 << 30}
		if diff := cmp.Diff(FromInt32s(in).Int32s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("quant8", func(t *testing.T) {
		in := []uint8{0, 127, 128, 255}
		if diff := cmp.Diff(FromQuant8s(in).Quant8s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("int8", func(t *testing.T) {
		in := []int8{-128, -1, 0, 127}
		if diff := cmp.Diff(FromInt8s(in).Int8s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("uint16", func(t *testing.T) {
		in := []uint16{0, 1, 65535}
		if diff := cmp.Diff(FromUint16s(in).Uint16s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("int16", func(t *testing.T) {
		in := []int16{-32768, 0, 32767}
		if diff := cmp.Diff(FromInt16s(in).Int16s(), in); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("bool8", func(t *testing.T) {
		in := []bool{true, false, true}
		if diff := cmp.Diff(FromBool8s(in).Bool8s(), in); diff != "" {
			t.Error(diff)
		}
		if got := FromBool8s(in).Bytes(); got[0] != 1 || got[1] != 0 {
			t.Errorf("unexpected encoding %v", got)
		}
	})
}

func TestBufferAlignment(t *testing.T) {
	cases := []struct {
		size    int
		aligned uint32
	}{
		{0, 0},
		{1, 8},
		{4, 8},
		{8, 8},
		{9, 16},
		{16, 16},
	}

	for _, tt := range cases {
		b := FromBytes(make([]byte, tt.size))
		if got := b.AlignedSize(); got != tt.aligned {
			t.Errorf("size %d: expected aligned %d, got %d", tt.size, tt.aligned, got)
		}
	}
}

func TestBufferNil(t *testing.T) {
	var b *Buffer
	if b.Size() != 0 {
		t.Error("nil buffer has nonzero size")
	}
	if b.Bytes() != nil {
		t.Error("nil buffer has bytes")
	}
	if b.Clone() != nil {
		t.Error("nil buffer clones to non-nil")
	}
}

func TestBufferCloneIndependent(t *testing.T) {
	b := FromQuant8s([]uint8{1, 2, 3})
	c := b.Clone()
	c.data[0] = 9
	if b.data[0] != 1 {
		t.Error("clone aliases original")
	}
}
