package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TEENet-io/pmm-go/database"
)

var (
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeStatusChanged = errors.New("trade status changed concurrently")
)

// TradeDB keeps the settlement status of every trade.
type TradeDB struct {
	stmtcache *database.StmtCache
}

func NewTradeDB(db *sql.DB) (*TradeDB, error) {
	if _, err := db.Exec(tradeTable); err != nil {
		return nil, err
	}

	return &TradeDB{
		stmtcache: database.NewStmtCache(db),
	}, nil
}

func (db *TradeDB) Close() {
	db.stmtcache.Clear()
}

func (db *TradeDB) Insert(ctx context.Context, tradeId string, status TradeStatus) error {
	stmt, err := db.stmtcache.Prepare(ctx, queryInsertTrade)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx, NormalizeTradeId(tradeId), string(status))
	return err
}

func (db *TradeDB) Get(ctx context.Context, tradeId string) (*Trade, error) {
	stmt, err := db.stmtcache.Prepare(ctx, queryGetTrade)
	if err != nil {
		return nil, err
	}

	var t sqlTrade
	if err := stmt.QueryRowContext(ctx, NormalizeTradeId(tradeId)).Scan(
		&t.TradeId,
		&t.Status,
		&t.PaymentTxId,
		&t.FailureReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeId)
		}
		return nil, err
	}

	return t.decode(), nil
}

func (db *TradeDB) UpdateStatus(ctx context.Context, tradeId string, status TradeStatus) error {
	return db.exec(ctx, queryUpdateTradeStatus, tradeId, string(status), NormalizeTradeId(tradeId))
}

// TransitionStatus moves the trade to `to` only while it is still in `from`.
func (db *TradeDB) TransitionStatus(ctx context.Context, tradeId string, from, to TradeStatus) error {
	err := db.exec(ctx, queryUpdateTradeStatusFrom, tradeId, string(to), NormalizeTradeId(tradeId), string(from))
	if errors.Is(err, ErrTradeNotFound) {
		return fmt.Errorf("%w: %s expected %s", ErrTradeStatusChanged, tradeId, from)
	}
	return err
}

func (db *TradeDB) RecordPayment(ctx context.Context, tradeId string, paymentTxId string) error {
	return db.exec(ctx, queryRecordPayment, tradeId, string(TradePaymentSent), paymentTxId, NormalizeTradeId(tradeId))
}

func (db *TradeDB) RecordFailure(ctx context.Context, tradeId string, reason string) error {
	return db.exec(ctx, queryRecordFailure, tradeId, string(TradeFailed), reason, NormalizeTradeId(tradeId))
}

func (db *TradeDB) GetByStatus(ctx context.Context, status TradeStatus) ([]*Trade, error) {
	stmt, err := db.stmtcache.Prepare(ctx, queryTradesByStatus)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []*Trade{}
	for rows.Next() {
		var t sqlTrade
		if err := rows.Scan(
			&t.TradeId,
			&t.Status,
			&t.PaymentTxId,
			&t.FailureReason,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t.decode())
	}
	return trades, rows.Err()
}

func (db *TradeDB) exec(ctx context.Context, query string, tradeId string, args ...interface{}) error {
	stmt, err := db.stmtcache.Prepare(ctx, query)
	if err != nil {
		return err
	}

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeId)
	}
	return nil
}
