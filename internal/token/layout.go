package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	AccountSize = 165
	MintSize    = 82
)

const (
	StateUninitialized uint8 = iota
	StateInitialized
	StateFrozen
)

var ErrInvalidAccountData = errors.New("invalid token account data")

// Account is the token account layout owned by the token program.
type Account struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        *solana.PublicKey
	State           uint8
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey
}

func (a *Account) Initialized() bool {
	return a.State != StateUninitialized
}

type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

func EncodeAccount(a Account) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, AccountSize))
	w := &layoutWriter{enc: bin.NewBinEncoder(buf)}
	w.pubkey(a.Mint)
	w.pubkey(a.Owner)
	w.u64(a.Amount)
	w.optionalPubkey(a.Delegate)
	w.u8(a.State)
	w.optionalU64(a.IsNative)
	w.u64(a.DelegatedAmount)
	w.optionalPubkey(a.CloseAuthority)
	if w.err != nil {
		return nil, fmt.Errorf("encode token account: %w", w.err)
	}
	return buf.Bytes(), nil
}

func DecodeAccount(data []byte) (Account, error) {
	if len(data) != AccountSize {
		return Account{}, fmt.Errorf("%w: account is %d bytes, want %d", ErrInvalidAccountData, len(data), AccountSize)
	}
	r := &layoutReader{dec: bin.NewBinDecoder(data)}
	out := Account{
		Mint:     r.pubkey(),
		Owner:    r.pubkey(),
		Amount:   r.u64(),
		Delegate: r.optionalPubkey(),
		State:    r.u8(),
		IsNative: r.optionalU64(),
	}
	out.DelegatedAmount = r.u64()
	out.CloseAuthority = r.optionalPubkey()
	if r.err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccountData, r.err)
	}
	return out, nil
}

func EncodeMint(m Mint) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, MintSize))
	w := &layoutWriter{enc: bin.NewBinEncoder(buf)}
	w.optionalPubkey(m.MintAuthority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	if m.IsInitialized {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.optionalPubkey(m.FreezeAuthority)
	if w.err != nil {
		return nil, fmt.Errorf("encode mint: %w", w.err)
	}
	return buf.Bytes(), nil
}

func DecodeMint(data []byte) (Mint, error) {
	if len(data) != MintSize {
		return Mint{}, fmt.Errorf("%w: mint is %d bytes, want %d", ErrInvalidAccountData, len(data), MintSize)
	}
	r := &layoutReader{dec: bin.NewBinDecoder(data)}
	out := Mint{
		MintAuthority: r.optionalPubkey(),
		Supply:        r.u64(),
		Decimals:      r.u8(),
		IsInitialized: r.u8() == 1,
	}
	out.FreezeAuthority = r.optionalPubkey()
	if r.err != nil {
		return Mint{}, fmt.Errorf("%w: %v", ErrInvalidAccountData, r.err)
	}
	return out, nil
}

// COption fields carry a 4-byte tag and always reserve the value bytes.
type layoutWriter struct {
	enc *bin.Encoder
	err error
}

func (w *layoutWriter) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *layoutWriter) u32(v uint32) {
	if w.err == nil {
		w.err = w.enc.WriteUint32(v, binary.LittleEndian)
	}
}

func (w *layoutWriter) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, binary.LittleEndian)
	}
}

func (w *layoutWriter) pubkey(v solana.PublicKey) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(v.Bytes(), false)
	}
}

func (w *layoutWriter) optionalPubkey(v *solana.PublicKey) {
	if v == nil {
		w.u32(0)
		w.pubkey(solana.PublicKey{})
		return
	}
	w.u32(1)
	w.pubkey(*v)
}

func (w *layoutWriter) optionalU64(v *uint64) {
	if v == nil {
		w.u32(0)
		w.u64(0)
		return
	}
	w.u32(1)
	w.u64(*v)
}

type layoutReader struct {
	dec *bin.Decoder
	err error
}

func (r *layoutReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}

func (r *layoutReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(binary.LittleEndian)
	r.err = err
	return v
}

func (r *layoutReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *layoutReader) pubkey() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	raw, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(raw)
}

func (r *layoutReader) optionalPubkey() *solana.PublicKey {
	tag := r.u32()
	key := r.pubkey()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &key
}

func (r *layoutReader) optionalU64() *uint64 {
	tag := r.u32()
	v := r.u64()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &v
}
