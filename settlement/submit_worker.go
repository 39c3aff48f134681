package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/etherman"
	"github.com/TEENet-io/pmm-go/logconfig"
	"github.com/TEENet-io/pmm-go/metrics"
	"github.com/TEENet-io/pmm-go/signature"
	"github.com/TEENet-io/pmm-go/solver"
	"github.com/TEENet-io/pmm-go/state"
)

type Submitter interface {
	SubmitSettlementTx(ctx context.Context, req *solver.SubmitSettlementRequest) (*solver.SubmitSettlementResponse, error)
}

type SubmitWorker struct {
	pmmId  string
	key    *ecdsa.PrivateKey
	router etherman.Router
	solver Submitter
	trades TradeStore
	now    func() time.Time
}

func NewSubmitWorker(pmmId string, key *ecdsa.PrivateKey, router etherman.Router, solver Submitter, trades TradeStore) *SubmitWorker {
	return &SubmitWorker{
		pmmId:  pmmId,
		key:    key,
		router: router,
		solver: solver,
		trades: trades,
		now:    time.Now,
	}
}

// Sign builds the attestation of p signed at signedAt.
func (w *SubmitWorker) Sign(ctx context.Context, p *SubmitPayload, signedAt int64) (*solver.SubmitSettlementRequest, error) {
	tradeId, err := common.HexStrToBytes32(p.TradeId)
	if err != nil {
		return nil, err
	}
	tradeIds := [][32]byte{tradeId}
	startIdx := big.NewInt(0)

	infoHash, err := signature.MakePaymentHash(tradeIds, uint64(signedAt), startIdx, signature.SettlementTxBytes(p.PaymentTxId))
	if err != nil {
		return nil, fmt.Errorf("make payment hash: %w", err)
	}

	signer, err := w.router.GetSigner(ctx)
	if err != nil {
		return nil, fmt.Errorf("get signer: %w", err)
	}
	domain, err := w.router.GetEIP712Domain(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("get eip712 domain: %w", err)
	}

	sig, err := signature.SignMakePayment(w.key, domain, infoHash)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return &solver.SubmitSettlementRequest{
		TradeIds:     []string{p.TradeId},
		PmmId:        w.pmmId,
		SettlementTx: signature.SettlementTx(p.PaymentTxId),
		Signature:    hexutil.Encode(sig),
		StartIndex:   int(startIdx.Int64()),
		SignedAt:     signedAt,
	}, nil
}

// Process signs a fresh attestation and posts it. Errors are returned as
// is so that the queue retries with its own backoff.
func (w *SubmitWorker) Process(ctx context.Context, p *SubmitPayload) error {
	log := logconfig.FromContext(ctx).WithFields(logger.Fields{
		"tradeId":     p.TradeId,
		"paymentTxId": p.PaymentTxId,
	})

	req, err := w.Sign(ctx, p, w.now().Unix())
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeRetry).Inc()
		log.WithField("err", err).Error("failed to sign settlement")
		return err
	}

	resp, err := w.solver.SubmitSettlementTx(ctx, req)
	if err != nil {
		fields := logger.Fields{
			"err":     err,
			"request": req,
		}
		var se *solver.StatusError
		if errors.As(err, &se) {
			fields["status"] = se.StatusCode
			fields["body"] = se.Body
		}
		log.WithFields(fields).Error("solver rejected settlement")
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeRetry).Inc()
		return err
	}

	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.WithFields(logger.Fields{
		"message":  resp.Message,
		"signedAt": req.SignedAt,
	}).Info("settlement submitted")

	if err := w.trades.UpdateStatus(ctx, p.TradeId, state.TradeSubmitted); err != nil {
		log.WithField("err", err).Warn("failed to mark trade submitted")
	}
	return nil
}
