package state

import "strings"

var (
	zeroBytes32 = "0x" + strings.Repeat("0", 64)

	// one row per trade this PMM has been asked to settle
	tradeTable = `CREATE TABLE IF NOT EXISTS trade (
		tradeId CHAR(66) PRIMARY KEY NOT NULL,
		status VARCHAR(16) NOT NULL,
		paymentTxId VARCHAR(128),
		failureReason TEXT,
		createdAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT chk_tradeId CHECK (tradeId != '` + zeroBytes32 + `'),
		CONSTRAINT chk_status CHECK (status IN ('COMMITTED', 'SETTLING', 'PAYMENT_SENT', 'SUBMITTED', 'FAILED'))
	);`

	queryInsertTrade           = `INSERT INTO trade (tradeId, status) VALUES (?, ?);`
	queryGetTrade              = `SELECT tradeId, status, paymentTxId, failureReason, createdAt, updatedAt FROM trade WHERE tradeId = ?;`
	queryUpdateTradeStatus     = `UPDATE trade SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE tradeId = ?;`
	queryUpdateTradeStatusFrom = `UPDATE trade SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE tradeId = ? AND status = ?;`
	queryRecordPayment         = `UPDATE trade SET status = ?, paymentTxId = ?, updatedAt = CURRENT_TIMESTAMP WHERE tradeId = ?;`
	queryRecordFailure         = `UPDATE trade SET status = ?, failureReason = ?, updatedAt = CURRENT_TIMESTAMP WHERE tradeId = ?;`
	queryTradesByStatus        = `SELECT tradeId, status, paymentTxId, failureReason, createdAt, updatedAt FROM trade WHERE status = ? ORDER BY createdAt ASC;`

	// token registry, keyed by network id and token address
	tokenTable = `CREATE TABLE IF NOT EXISTS token (
		networkId VARCHAR(64) NOT NULL,
		tokenAddress VARCHAR(128) NOT NULL,
		networkType VARCHAR(16) NOT NULL,
		tokenSymbol VARCHAR(32) NOT NULL,
		tokenDecimals INT NOT NULL,
		PRIMARY KEY (networkId, tokenAddress),
		CONSTRAINT chk_networkType CHECK (networkType IN ('EVM', 'BTC', 'TBTC', 'SOLANA')),
		CONSTRAINT chk_decimals CHECK (tokenDecimals >= 0)
	);`

	queryUpsertToken = `INSERT INTO token (networkId, tokenAddress, networkType, tokenSymbol, tokenDecimals)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(networkId, tokenAddress) DO UPDATE SET
		networkType = excluded.networkType, tokenSymbol = excluded.tokenSymbol, tokenDecimals = excluded.tokenDecimals;`
	queryGetToken = `SELECT networkId, tokenAddress, networkType, tokenSymbol, tokenDecimals FROM token
		WHERE networkId = ? AND LOWER(tokenAddress) = LOWER(?);`
	queryListTokens = `SELECT networkId, tokenAddress, networkType, tokenSymbol, tokenDecimals FROM token ORDER BY networkId, tokenSymbol;`
)
