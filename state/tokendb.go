package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/TEENet-io/pmm-go/database"
)

var (
	ErrTokenNotFound = errors.New("token not found")
)

// TokenDB is the token registry: what a (network id, token address) pair
// means to the strategies.
type TokenDB struct {
	stmtcache *database.StmtCache
}

func NewTokenDB(db *sql.DB) (*TokenDB, error) {
	if _, err := db.Exec(tokenTable); err != nil {
		return nil, err
	}

	return &TokenDB{
		stmtcache: database.NewStmtCache(db),
	}, nil
}

func (db *TokenDB) Close() {
	db.stmtcache.Clear()
}

func (db *TokenDB) Upsert(ctx context.Context, token *Token) error {
	stmt, err := db.stmtcache.Prepare(ctx, queryUpsertToken)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		token.NetworkId,
		token.TokenAddress,
		strings.ToUpper(string(token.NetworkType)),
		token.TokenSymbol,
		token.TokenDecimals,
	)
	return err
}

// GetToken matches the token address case-insensitively, EVM addresses
// reach us both checksummed and lower-cased.
func (db *TokenDB) GetToken(ctx context.Context, networkId, tokenAddress string) (*Token, error) {
	stmt, err := db.stmtcache.Prepare(ctx, queryGetToken)
	if err != nil {
		return nil, err
	}

	var t Token
	var networkType string
	if err := stmt.QueryRowContext(ctx, networkId, tokenAddress).Scan(
		&t.NetworkId,
		&t.TokenAddress,
		&networkType,
		&t.TokenSymbol,
		&t.TokenDecimals,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: network=%s token=%s", ErrTokenNotFound, networkId, tokenAddress)
		}
		return nil, err
	}
	t.NetworkType = NetworkType(networkType)

	return &t, nil
}

func (db *TokenDB) List(ctx context.Context) ([]*Token, error) {
	stmt, err := db.stmtcache.Prepare(ctx, queryListTokens)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []*Token{}
	for rows.Next() {
		var t Token
		var networkType string
		if err := rows.Scan(&t.NetworkId, &t.TokenAddress, &networkType, &t.TokenSymbol, &t.TokenDecimals); err != nil {
			return nil, err
		}
		t.NetworkType = NetworkType(networkType)
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// DefaultTokens are the native assets every deployment settles in.
// ERC20 and SPL tokens come from the backend token list.
func DefaultTokens() []*Token {
	return []*Token{
		{NetworkId: "bitcoin", NetworkType: NetworkBTC, TokenAddress: NativeToken, TokenSymbol: "BTC", TokenDecimals: 8},
		{NetworkId: "bitcoin_testnet", NetworkType: NetworkTBTC, TokenAddress: NativeToken, TokenSymbol: "tBTC", TokenDecimals: 8},
		{NetworkId: "ethereum", NetworkType: NetworkEVM, TokenAddress: NativeToken, TokenSymbol: "ETH", TokenDecimals: 18},
		{NetworkId: "ethereum_sepolia", NetworkType: NetworkEVM, TokenAddress: NativeToken, TokenSymbol: "ETH", TokenDecimals: 18},
		{NetworkId: "base_sepolia", NetworkType: NetworkEVM, TokenAddress: NativeToken, TokenSymbol: "ETH", TokenDecimals: 18},
		{NetworkId: "solana", NetworkType: NetworkSolana, TokenAddress: NativeToken, TokenSymbol: "SOL", TokenDecimals: 9},
		{NetworkId: "solana_devnet", NetworkType: NetworkSolana, TokenAddress: NativeToken, TokenSymbol: "SOL", TokenDecimals: 9},
	}
}
