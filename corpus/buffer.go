// Package corpus holds the source form of conformance test models:
// typed operand buffers carrying stimulus and expected data, the model
// registry the suite iterates, and the golden models themselves.
package corpus

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Alignment is the byte alignment of operand data wherever the suite
// packs buffers back to back (value blobs, reference pools, request
// pools).
const Alignment = 8

// Align rounds n up to the next Alignment boundary.
func Align(n uint32) uint32 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Buffer is a type-erased operand buffer. Data is stored in wire form,
// little endian.
type Buffer struct {
	data []byte
}

func FromBytes(data []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), data...)}
}

func FromFloat32s(values []float32) *Buffer {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return &Buffer{data: data}
}

func FromFloat16s(values []float32) *Buffer {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
	}
	return &Buffer{data: data}
}

func FromInt32s(values []int32) *Buffer {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return &Buffer{data: data}
}

func FromQuant8s(values []uint8) *Buffer {
	return FromBytes(values)
}

func FromInt8s(values []int8) *Buffer {
	data := make([]byte, len(values))
	for i, v := range values {
		data[i] = byte(v)
	}
	return &Buffer{data: data}
}

func FromUint16s(values []uint16) *Buffer {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return &Buffer{data: data}
}

func FromInt16s(values []int16) *Buffer {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	return &Buffer{data: data}
}

func FromBool8s(values []bool) *Buffer {
	data := make([]byte, len(values))
	for i, v := range values {
		if v {
			data[i] = 1
		}
	}
	return &Buffer{data: data}
}

// Size returns the payload size in bytes.
func (b *Buffer) Size() uint32 {
	if b == nil {
		return 0
	}
	return uint32(len(b.data))
}

// AlignedSize returns the size rounded up to the pack alignment.
func (b *Buffer) AlignedSize() uint32 {
	return Align(b.Size())
}

// Bytes returns the raw payload. Callers must not modify it.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	return FromBytes(b.data)
}

func (b *Buffer) Float32s() []float32 {
	values := make([]float32, len(b.data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b.data[4*i:]))
	}
	return values
}

// Float16s decodes the payload as IEEE 754 half precision values.
func (b *Buffer) Float16s() []float16.Float16 {
	values := make([]float16.Float16, len(b.data)/2)
	for i := range values {
		values[i] = float16.Frombits(binary.LittleEndian.Uint16(b.data[2*i:]))
	}
	return values
}

func (b *Buffer) Int32s() []int32 {
	values := make([]int32, len(b.data)/4)
	for i := range values {
		values[i] = int32(binary.LittleEndian.Uint32(b.data[4*i:]))
	}
	return values
}

func (b *Buffer) Quant8s() []uint8 {
	return b.Bytes()
}

func (b *Buffer) Int8s() []int8 {
	values := make([]int8, len(b.data))
	for i, v := range b.data {
		values[i] = int8(v)
	}
	return values
}

func (b *Buffer) Uint16s() []uint16 {
	values := make([]uint16, len(b.data)/2)
	for i := range values {
		values[i] = binary.LittleEndian.Uint16(b.data[2*i:])
	}
	return values
}

func (b *Buffer) Int16s() []int16 {
	values := make([]int16, len(b.data)/2)
	for i := range values {
		values[i] = int16(binary.LittleEndian.Uint16(b.data[2*i:]))
	}
	return values
}

func (b *Buffer) Bool8s() []bool {
	values := make([]bool, len(b.data))
	for i, v := range b.data {
		values[i] = v != 0
	}
	return values
}
