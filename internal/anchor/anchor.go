// Package anchor holds the Anchor wire-format helpers shared by the vault
// program and the downstream protocol call contracts: 8-byte discriminators
// and borsh encoding of optional arguments.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

const DiscriminatorSize = 8

var ErrDiscriminatorMismatch = errors.New("discriminator mismatch")

type Discriminator [DiscriminatorSize]byte

func InstructionDiscriminator(ixName string) Discriminator {
	return hashDiscriminator("global:" + ixName)
}

func AccountDiscriminator(accountName string) Discriminator {
	return hashDiscriminator("account:" + accountName)
}

func hashDiscriminator(preimage string) Discriminator {
	hash := sha256.Sum256([]byte(preimage))
	var out Discriminator
	copy(out[:], hash[:DiscriminatorSize])
	return out
}

// SplitDiscriminator returns the leading discriminator and the borsh payload
// that follows it.
func SplitDiscriminator(data []byte) (Discriminator, []byte, error) {
	var out Discriminator
	if len(data) < DiscriminatorSize {
		return out, nil, fmt.Errorf("payload too short for discriminator: %d bytes", len(data))
	}
	copy(out[:], data[:DiscriminatorSize])
	return out, data[DiscriminatorSize:], nil
}

// Payload starts a borsh payload prefixed with disc.
type Payload struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func NewPayload(disc Discriminator) *Payload {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	return &Payload{buf: buf, enc: bin.NewBorshEncoder(buf)}
}

func (p *Payload) U16(v uint16) *Payload {
	if p.err == nil {
		p.err = p.enc.WriteUint16(v, binary.LittleEndian)
	}
	return p
}

func (p *Payload) U64(v uint64) *Payload {
	if p.err == nil {
		p.err = p.enc.WriteUint64(v, binary.LittleEndian)
	}
	return p
}

func (p *Payload) Bool(v bool) *Payload {
	if p.err == nil {
		p.err = p.enc.WriteBool(v)
	}
	return p
}

func (p *Payload) String(v string) *Payload {
	if p.err == nil {
		p.err = p.enc.WriteUint32(uint32(len(v)), binary.LittleEndian)
	}
	if p.err == nil {
		p.err = p.enc.WriteBytes([]byte(v), false)
	}
	return p
}

func (p *Payload) OptionalString(v *string) *Payload {
	p.Bool(v != nil)
	if v != nil {
		p.String(*v)
	}
	return p
}

func (p *Payload) OptionalI64(v *int64) *Payload {
	p.Bool(v != nil)
	if v != nil && p.err == nil {
		p.err = p.enc.WriteInt64(*v, binary.LittleEndian)
	}
	return p
}

func (p *Payload) Bytes() ([]byte, error) {
	if p.err != nil {
		return nil, fmt.Errorf("encode borsh payload: %w", p.err)
	}
	return p.buf.Bytes(), nil
}

// Reader decodes a borsh payload field by field; the first error sticks.
type Reader struct {
	dec *bin.Decoder
	err error
}

func NewReader(payload []byte) *Reader {
	return &Reader{dec: bin.NewBorshDecoder(payload)}
}

func (r *Reader) U16() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(binary.LittleEndian)
	r.err = err
	return v
}

func (r *Reader) U64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.err = err
	return v
}

func (r *Reader) String() string {
	if r.err != nil {
		return ""
	}
	size, err := r.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		r.err = err
		return ""
	}
	if int(size) > r.dec.Remaining() {
		r.err = fmt.Errorf("string length %d exceeds remaining %d bytes", size, r.dec.Remaining())
		return ""
	}
	raw, err := r.dec.ReadNBytes(int(size))
	r.err = err
	return string(raw)
}

func (r *Reader) OptionalString() *string {
	if !r.Bool() {
		return nil
	}
	v := r.String()
	if r.err != nil {
		return nil
	}
	return &v
}

func (r *Reader) OptionalI64() *int64 {
	if !r.Bool() {
		return nil
	}
	if r.err != nil {
		return nil
	}
	v, err := r.dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		r.err = err
		return nil
	}
	return &v
}

// Finish reports the first decode error, or trailing bytes.
func (r *Reader) Finish() error {
	if r.err != nil {
		return fmt.Errorf("decode borsh payload: %w", r.err)
	}
	if r.dec.Remaining() != 0 {
		return fmt.Errorf("decode borsh payload: %d trailing bytes", r.dec.Remaining())
	}
	return nil
}
