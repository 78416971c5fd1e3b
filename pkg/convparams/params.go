// Package convparams decodes and encodes the fixed-schema parameter blob that
// describes one 3D convolution: twenty consecutive little-endian int32 values.
package convparams

import (
	"encoding/binary"
	"fmt"
)

const (
	// FieldCount is the number of int32 fields in a parameter blob.
	FieldCount = 20
	// BlobSize is the minimum byte length of a valid parameter blob.
	BlobSize = FieldCount * 4
	// LaneWidth is the number of channels packed into one texel.
	LaneWidth = 4
)

// ConvParams holds the extents of one convolution. The X, Y and Z suffixes
// follow the image axes: X is width, Y is height, Z is depth.
type ConvParams struct {
	Din, Hin, Win, Cin     int
	Dout, Hout, Wout, Cout int
	Dk, Hk, Wk             int
	Sx, Sy, Sz             int
	Px, Py, Pz             int
	Lx, Ly, Lz             int
}

// fields returns pointers to every field in blob order.
func (p *ConvParams) fields() [FieldCount]*int {
	return [FieldCount]*int{
		&p.Din, &p.Hin, &p.Win, &p.Cin,
		&p.Dout, &p.Hout, &p.Wout, &p.Cout,
		&p.Dk, &p.Hk, &p.Wk,
		&p.Sx, &p.Sy, &p.Sz,
		&p.Px, &p.Py, &p.Pz,
		&p.Lx, &p.Ly, &p.Lz,
	}
}

// Decode parses a parameter blob. Bytes past the twentieth field are ignored.
// Only the length is checked here; channel grouping is validated by the
// consumers that depend on it.
func Decode(data []byte) (ConvParams, error) {
	if len(data) < BlobSize {
		return ConvParams{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrMalformedInput, len(data), BlobSize)
	}
	var p ConvParams
	for i, f := range p.fields() {
		*f = int(int32(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return p, nil
}

// Encode serialises p into a BlobSize byte blob.
func (p ConvParams) Encode() []byte {
	out := make([]byte, BlobSize)
	for i, f := range p.fields() {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(*f)))
	}
	return out
}

// Validate checks the channel grouping invariant.
func (p ConvParams) Validate() error {
	if p.Cin%LaneWidth != 0 {
		return fmt.Errorf("%w: Cin=%d", ErrInvalidChannelGrouping, p.Cin)
	}
	if p.Cout%LaneWidth != 0 {
		return fmt.Errorf("%w: Cout=%d", ErrInvalidChannelGrouping, p.Cout)
	}
	return nil
}

// Cgin is the number of input channel groups.
func (p ConvParams) Cgin() int { return p.Cin / LaneWidth }

// Cgout is the number of output channel groups.
func (p ConvParams) Cgout() int { return p.Cout / LaneWidth }

func (p ConvParams) String() string {
	return fmt.Sprintf(
		"in=[D=%d H=%d W=%d C=%d] out=[D=%d H=%d W=%d C=%d] k=[D=%d H=%d W=%d] s=[%d %d %d] p=[%d %d %d] l=[%d %d %d]",
		p.Din, p.Hin, p.Win, p.Cin,
		p.Dout, p.Hout, p.Wout, p.Cout,
		p.Dk, p.Hk, p.Wk,
		p.Sx, p.Sy, p.Sz,
		p.Px, p.Py, p.Pz,
		p.Lx, p.Ly, p.Lz,
	)
}
