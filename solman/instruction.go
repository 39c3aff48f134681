package solman

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// anchor discriminator of the payment instruction
var paymentDiscriminator = anchorDiscriminator("payment")

func anchorDiscriminator(name string) [8]byte {
	var out [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(out[:], sum[:8])
	return out
}

type PaymentArgs struct {
	TradeId  [32]byte
	Token    *solana.PublicKey // nil for native SOL
	Amount   uint64
	TotalFee uint64
	Deadline int64
}

// Data is the discriminator followed by the borsh encoded arguments.
func (a *PaymentArgs) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(paymentDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(a.TradeId[:], false); err != nil {
		return nil, err
	}
	if a.Token == nil {
		if err := enc.WriteUint8(0); err != nil {
			return nil, err
		}
	} else {
		if err := enc.WriteUint8(1); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(a.Token[:], false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint64(a.Amount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(a.TotalFee, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteInt64(a.Deadline, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type PaymentAccounts struct {
	Signer         solana.PublicKey
	ToUser         solana.PublicKey
	Protocol       solana.PublicKey
	Whitelist      solana.PublicKey
	PaymentReceipt solana.PublicKey

	// SPL transfers only
	Mint        *solana.PublicKey
	FromAta     solana.PublicKey
	ToAta       solana.PublicKey
	ProtocolAta solana.PublicKey
}

func (a *PaymentAccounts) metas() solana.AccountMetaSlice {
	metas := solana.AccountMetaSlice{
		solana.Meta(a.Signer).WRITE().SIGNER(),
		solana.Meta(a.ToUser).WRITE(),
		solana.Meta(a.Protocol).WRITE(),
		solana.Meta(a.Whitelist),
		solana.Meta(a.PaymentReceipt).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}
	if a.Mint != nil {
		metas = append(metas,
			solana.Meta(solana.TokenProgramID),
			solana.Meta(*a.Mint),
			solana.Meta(a.FromAta).WRITE(),
			solana.Meta(a.ToAta).WRITE(),
			solana.Meta(a.ProtocolAta).WRITE(),
		)
	}
	return metas
}

func NewPaymentInstruction(programId solana.PublicKey, accounts *PaymentAccounts, args *PaymentArgs) (solana.Instruction, error) {
	data, err := args.Data()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programId, accounts.metas(), data), nil
}
