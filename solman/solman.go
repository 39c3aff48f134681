package solman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	logger "github.com/sirupsen/logrus"
)

var (
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")
	ErrTxFailed         = errors.New("transaction failed on chain")
	ErrAmountOverflow   = errors.New("amount does not fit in u64")
	ErrMissingProgramId = errors.New("missing solana program id")
)

// RPC is the part of *rpc.Client the payment flow needs.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type Solman struct {
	mu  sync.RWMutex
	rpc RPC

	programId  solana.PublicKey
	key        solana.PrivateKey
	maxRetry   int
	retryDelay time.Duration
	now        func() time.Time
}

func NewSolman(cfg *Config) (*Solman, error) {
	if cfg.ProgramId == "" {
		return nil, ErrMissingProgramId
	}
	return NewSolmanWithRPC(rpc.New(cfg.RpcUrl), cfg)
}

func NewSolmanWithRPC(client RPC, cfg *Config) (*Solman, error) {
	programId, err := solana.PublicKeyFromBase58(cfg.ProgramId)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	key, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}

	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = DefaultMaxRetry
	}
	delay := cfg.RetryDelay
	if delay < 0 {
		delay = DefaultRetryDelay
	}

	return &Solman{
		rpc:        client,
		programId:  programId,
		key:        key,
		maxRetry:   maxRetry,
		retryDelay: delay,
		now:        time.Now,
	}, nil
}

// SetEndpoint points the client at another cluster. In flight calls finish
// on the previous client.
func (s *Solman) SetEndpoint(url string) {
	s.setRPC(rpc.New(url))
	logger.WithField("url", url).Info("solana rpc endpoint switched")
}

func (s *Solman) setRPC(client RPC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpc = client
}

func (s *Solman) client() RPC {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rpc
}

func (s *Solman) Address() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *Solman) ProgramId() solana.PublicKey {
	return s.programId
}

// NativeBalance in lamports.
func (s *Solman) NativeBalance(ctx context.Context) (uint64, error) {
	res, err := s.client().GetBalance(ctx, s.Address(), DefaultCommitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// TokenBalance of the operator's associated token account for mint, in base
// units. A missing account has balance zero.
func (s *Solman) TokenBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(s.Address(), mint)
	if err != nil {
		return 0, err
	}
	res, err := s.client().GetTokenAccountBalance(ctx, ata, DefaultCommitment)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if res.Value == nil {
		return 0, nil
	}
	return strconv.ParseUint(res.Value.Amount, 10, 64)
}

// Balance of token, either "native" or an SPL mint.
func (s *Solman) Balance(ctx context.Context, token *solana.PublicKey) (uint64, error) {
	if token == nil {
		return s.NativeBalance(ctx)
	}
	return s.TokenBalance(ctx, *token)
}

func (s *Solman) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	res, err := s.client().GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: DefaultCommitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return res != nil && res.Value != nil, nil
}

// ParseToken maps "native" or an empty string to nil and anything else to a mint.
func ParseToken(token string) (*solana.PublicKey, error) {
	if token == "" || token == nativeTokenAddress {
		return nil, nil
	}
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return nil, err
	}
	return &mint, nil
}

type Payment struct {
	TradeId  [32]byte
	ToUser   solana.PublicKey
	Token    *solana.PublicKey // nil for native SOL
	Amount   *big.Int
	TotalFee *big.Int
	TTL      time.Duration
}

func toU64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, v)
	}
	return v.Uint64(), nil
}

// BuildPayment returns the instructions settling p: destination and
// protocol token accounts are created first when they do not exist yet.
func (s *Solman) BuildPayment(ctx context.Context, p *Payment) ([]solana.Instruction, error) {
	amount, err := toU64(p.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := toU64(p.TotalFee)
	if err != nil {
		return nil, err
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = DefaultPaymentTTL
	}

	protocol, err := ProtocolPda(s.programId)
	if err != nil {
		return nil, err
	}
	whitelist, err := WhitelistPda(s.programId, p.Token)
	if err != nil {
		return nil, err
	}
	receipt, err := PaymentReceiptPda(s.programId, &ReceiptSeeds{
		TradeId:     p.TradeId,
		From:        s.Address(),
		To:          p.ToUser,
		Amount:      amount,
		ProtocolFee: fee,
		Token:       p.Token,
	})
	if err != nil {
		return nil, err
	}

	accounts := &PaymentAccounts{
		Signer:         s.Address(),
		ToUser:         p.ToUser,
		Protocol:       protocol,
		Whitelist:      whitelist,
		PaymentReceipt: receipt,
	}

	var instructions []solana.Instruction
	if p.Token != nil {
		mint := *p.Token
		accounts.Mint = &mint
		if accounts.FromAta, _, err = solana.FindAssociatedTokenAddress(s.Address(), mint); err != nil {
			return nil, err
		}

		for _, owner := range []solana.PublicKey{p.ToUser, protocol} {
			ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
			if err != nil {
				return nil, err
			}
			exists, err := s.accountExists(ctx, ata)
			if err != nil {
				return nil, err
			}
			if !exists {
				instructions = append(instructions,
					associatedtokenaccount.NewCreateInstruction(s.Address(), owner, mint).Build())
			}
			if owner.Equals(p.ToUser) {
				accounts.ToAta = ata
			} else {
				accounts.ProtocolAta = ata
			}
		}
	}

	ix, err := NewPaymentInstruction(s.programId, accounts, &PaymentArgs{
		TradeId:  p.TradeId,
		Token:    p.Token,
		Amount:   amount,
		TotalFee: fee,
		Deadline: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return nil, err
	}
	return append(instructions, ix), nil
}

// Pay builds and sends the payment, returning the confirmed signature.
func (s *Solman) Pay(ctx context.Context, p *Payment) (solana.Signature, error) {
	instructions, err := s.BuildPayment(ctx, p)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.SendWithRetry(ctx, instructions)
}

// SendWithRetry keeps resending with a fresh blockhash until one attempt
// confirms, maxRetry attempts failed, or the chain moved BlockhashTTL blocks
// past the first attempt.
func (s *Solman) SendWithRetry(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	client := s.client()
	start, err := client.GetBlockHeight(ctx, DefaultCommitment)
	if err != nil {
		return solana.Signature{}, err
	}
	lastValid := start + BlockhashTTL

	var lastErr error
	for attempt := 0; attempt < s.maxRetry; attempt++ {
		height, err := client.GetBlockHeight(ctx, DefaultCommitment)
		if err == nil && height > lastValid {
			break
		}

		sig, err := s.sendAndConfirm(ctx, client, instructions)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		logger.WithFields(logger.Fields{
			"attempt": attempt + 1,
			"err":     err,
		}).Warn("solana send failed, retrying")

		if errors.Is(err, ErrTxFailed) {
			return solana.Signature{}, err
		}
		select {
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}

	if lastErr == nil {
		lastErr = ErrBlockhashExpired
	}
	return solana.Signature{}, lastErr
}

func (s *Solman) sendAndConfirm(ctx context.Context, client RPC, instructions []solana.Instruction) (solana.Signature, error) {
	latest, err := client.GetLatestBlockhash(ctx, DefaultCommitment)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(s.Address()))
	if err != nil {
		return solana.Signature{}, err
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.Address()) {
			return &s.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, err
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: DefaultCommitment,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	for {
		res, err := client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return sig, fmt.Errorf("%w: %v", ErrTxFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return sig, nil
			}
		}

		height, err := client.GetBlockHeight(ctx, DefaultCommitment)
		if err == nil && height > latest.Value.LastValidBlockHeight {
			return sig, ErrBlockhashExpired
		}

		select {
		case <-ctx.Done():
			return sig, ctx.Err()
		case <-time.After(confirmPollPeriod):
		}
	}
}
