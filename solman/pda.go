package solman

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var (
	protocolSeed       = []byte("protocol")
	whitelistSeed      = []byte("whitelist")
	paymentReceiptSeed = []byte("payment_receipt")
)

func ProtocolPda(programId solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{protocolSeed}, programId)
	return pda, err
}

// WhitelistPda of mint. Native SOL is whitelisted under the wrapped SOL mint.
func WhitelistPda(programId solana.PublicKey, mint *solana.PublicKey) (solana.PublicKey, error) {
	key := solana.SolMint
	if mint != nil {
		key = *mint
	}
	pda, _, err := solana.FindProgramAddress([][]byte{whitelistSeed, key[:]}, programId)
	return pda, err
}

type ReceiptSeeds struct {
	TradeId     [32]byte
	From        solana.PublicKey
	To          solana.PublicKey
	Amount      uint64
	ProtocolFee uint64
	Token       *solana.PublicKey // nil for native SOL
}

// PaymentReceiptPda is unique per (trade, parties, amounts, token), so a
// second identical payment fails on chain instead of paying twice.
func PaymentReceiptPda(programId solana.PublicKey, s *ReceiptSeeds) (solana.PublicKey, error) {
	token := solana.PublicKey{}
	if s.Token != nil {
		token = *s.Token
	}

	amount := make([]byte, 8)
	binary.LittleEndian.PutUint64(amount, s.Amount)
	fee := make([]byte, 8)
	binary.LittleEndian.PutUint64(fee, s.ProtocolFee)

	pda, _, err := solana.FindProgramAddress([][]byte{
		paymentReceiptSeed,
		s.TradeId[:],
		s.From[:],
		s.To[:],
		amount,
		fee,
		token[:],
	}, programId)
	return pda, err
}
