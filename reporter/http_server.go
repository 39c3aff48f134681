// This is a http type of reporter.
// It publishes trades from the trade store and queue stats on http routes,
// and takes the commit and settle signals that start a settlement.

package reporter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/settlement"
	"github.com/TEENet-io/pmm-go/state"
)

const (
	ROUTE_HELLO   = "/hello"
	ROUTE_TRADES  = "/trades"
	ROUTE_TRADE   = "/trades/:id"
	ROUTE_SETTLE  = "/trades/:id/settle"
	ROUTE_QUEUES  = "/queues"
	ROUTE_METRICS = "/metrics"

	shutdownTimeout = 10 * time.Second
)

type TradeReader interface {
	Get(ctx context.Context, tradeId string) (*state.Trade, error)
	GetByStatus(ctx context.Context, status state.TradeStatus) ([]*state.Trade, error)
}

type Settler interface {
	CommitTrade(ctx context.Context, tradeId string) error
	SignalPayment(ctx context.Context, tradeId string) error
}

type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data sources
	trades  TradeReader
	settler Settler
	queues  QueueInspector // optional
}

func NewHttpReporter(serverIP string, serverPort string, trades TradeReader, settler Settler, queues QueueInspector) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		trades:     trades,
		settler:    settler,
		queues:     queues,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_TRADES, h.TradesByStatus)
	router.GET(ROUTE_TRADE, h.Trade)
	router.POST(ROUTE_TRADES, h.Commit)
	router.POST(ROUTE_SETTLE, h.Settle)
	router.GET(ROUTE_QUEUES, h.Queues)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	return router
}

// Run serves until ctx is cancelled.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.serverIP + ":" + h.serverPort,
		Handler: h.SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("http reporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Liveness route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

type tradeJSON struct {
	TradeId       string `json:"tradeId"`
	Status        string `json:"status"`
	PaymentTxId   string `json:"paymentTxId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

func (h *HttpReporter) Trade(c *gin.Context) {
	tradeId, err := state.ParseTradeId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := h.trades.Get(c.Request.Context(), tradeId)
	if errors.Is(err, state.ErrTradeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No trade found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toJSON(trade)})
}

// Operators poll FAILED trades through this route.
func (h *HttpReporter) TradesByStatus(c *gin.Context) {
	status := state.TradeStatus(strings.ToUpper(c.Query("status")))
	switch status {
	case state.TradeCommitted, state.TradeSettling, state.TradePaymentSent, state.TradeSubmitted, state.TradeFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of COMMITTED, SETTLING, PAYMENT_SENT, SUBMITTED, FAILED"})
		return
	}

	trades, err := h.trades.GetByStatus(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, toJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func toJSON(t *state.Trade) tradeJSON {
	return tradeJSON{
		TradeId:       t.TradeId,
		Status:        string(t.Status),
		PaymentTxId:   t.PaymentTxId,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt.Unix(),
		UpdatedAt:     t.UpdatedAt.Unix(),
	}
}

type commitRequest struct {
	TradeId string `json:"tradeId" binding:"required"`
}

func (h *HttpReporter) Commit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tradeId, err := state.ParseTradeId(req.TradeId)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.settler.CommitTrade(c.Request.Context(), tradeId); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tradeId": tradeId, "status": state.TradeCommitted})
}

func (h *HttpReporter) Settle(c *gin.Context) {
	tradeId, err := state.ParseTradeId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.settler.SignalPayment(c.Request.Context(), tradeId)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"tradeId": tradeId, "status": state.TradeSettling})
	case errors.Is(err, state.ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No trade found"})
	case errors.Is(err, settlement.ErrTradeNotCommitted), errors.Is(err, state.ErrTradeStatusChanged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type queueJSON struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

func (h *HttpReporter) Queues(c *gin.Context) {
	if h.queues == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue inspector not configured"})
		return
	}

	out := make([]queueJSON, 0, 2)
	for _, name := range []string{settlement.TransferQueue, settlement.SubmitQueue} {
		info, err := h.queues.GetQueueInfo(name)
		if err != nil {
			// a queue only exists once a task was enqueued on it
			out = append(out, queueJSON{Queue: name})
			continue
		}
		out = append(out, queueJSON{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
