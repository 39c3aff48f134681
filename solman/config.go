package solman

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// blocks a blockhash stays usable for, counted from the first send
	BlockhashTTL       = 151
	DefaultMaxRetry    = 10
	DefaultRetryDelay  = 2 * time.Second
	DefaultPaymentTTL  = time.Hour
	confirmPollPeriod  = 500 * time.Millisecond
	DefaultCommitment  = rpc.CommitmentConfirmed
	nativeTokenAddress = "native"
)

type Config struct {
	// RpcUrl of the cluster, e.g. https://api.devnet.solana.com
	RpcUrl string

	// ProgramId of the deployed payment program
	ProgramId string

	// PrivateKey is the base58 encoded 64 byte secret key of the PMM
	PrivateKey string

	MaxRetry   int
	RetryDelay time.Duration
}
