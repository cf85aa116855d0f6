package vault

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/anchor"
	"github.com/coldbell/vault/backend/internal/pda"
)

const (
	recordPaddingSize = 7
	// RecordBodySize is salt, padding, owner and mint.
	RecordBodySize = 1 + recordPaddingSize + solana.PublicKeyLength*2
	RecordSize     = anchor.DiscriminatorSize + RecordBodySize
)

var RecordDiscriminator = anchor.AccountDiscriminator("Vault")

// Record is the persisted vault. All fields are fixed at creation.
type Record struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
	Salt  uint8
}

// SignerSeeds is the proof the host accepts as the vault's signature.
func (r Record) SignerSeeds() [][]byte {
	return pda.VaultSeeds(r.Mint, r.Owner, r.Salt)
}

func (r Record) Verify(programID, address solana.PublicKey) error {
	return pda.VerifyVault(programID, address, r.Mint, r.Owner, r.Salt)
}

func EncodeRecord(r Record) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	buf.Write(RecordDiscriminator[:])
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(r.Salt); err != nil {
		return nil, fmt.Errorf("encode vault salt: %w", err)
	}
	if err := enc.WriteBytes(make([]byte, recordPaddingSize), false); err != nil {
		return nil, fmt.Errorf("encode vault padding: %w", err)
	}
	if err := enc.WriteBytes(r.Owner.Bytes(), false); err != nil {
		return nil, fmt.Errorf("encode vault owner: %w", err)
	}
	if err := enc.WriteBytes(r.Mint.Bytes(), false); err != nil {
		return nil, fmt.Errorf("encode vault mint: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeRecord(data []byte) (Record, error) {
	if len(data) != RecordSize {
		return Record{}, fmt.Errorf("vault record is %d bytes, want %d", len(data), RecordSize)
	}
	disc, body, err := anchor.SplitDiscriminator(data)
	if err != nil {
		return Record{}, err
	}
	if disc != RecordDiscriminator {
		return Record{}, fmt.Errorf("%w: vault record", anchor.ErrDiscriminatorMismatch)
	}

	dec := bin.NewBorshDecoder(body)
	salt, err := dec.ReadUint8()
	if err != nil {
		return Record{}, fmt.Errorf("decode vault salt: %w", err)
	}
	if _, err := dec.ReadNBytes(recordPaddingSize); err != nil {
		return Record{}, fmt.Errorf("decode vault padding: %w", err)
	}
	owner, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return Record{}, fmt.Errorf("decode vault owner: %w", err)
	}
	mint, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return Record{}, fmt.Errorf("decode vault mint: %w", err)
	}
	return Record{
		Owner: solana.PublicKeyFromBytes(owner),
		Mint:  solana.PublicKeyFromBytes(mint),
		Salt:  salt,
	}, nil
}
