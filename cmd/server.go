// Server = router reader + chain clients + settlement workers + balance
// monitor + http reporter.
// All components are configured from config.Settings (env vars or a file).

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/alert"
	"github.com/TEENet-io/pmm-go/btcman/assembler"
	"github.com/TEENet-io/pmm-go/btcman/explorer"
	btcrpc "github.com/TEENet-io/pmm-go/btcman/rpc"
	"github.com/TEENet-io/pmm-go/config"
	"github.com/TEENet-io/pmm-go/database"
	"github.com/TEENet-io/pmm-go/etherman"
	"github.com/TEENet-io/pmm-go/ledger"
	"github.com/TEENet-io/pmm-go/monitor"
	"github.com/TEENet-io/pmm-go/price"
	"github.com/TEENet-io/pmm-go/reporter"
	"github.com/TEENet-io/pmm-go/settlement"
	"github.com/TEENet-io/pmm-go/solman"
	"github.com/TEENet-io/pmm-go/solver"
	"github.com/TEENet-io/pmm-go/state"
	"github.com/TEENet-io/pmm-go/tokensync"
	"github.com/TEENet-io/pmm-go/transfer"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	solverTimeout   = 30 * time.Second
	explorerTimeout = 15 * time.Second
	explorerRetries = 3
	explorerDelay   = 5 * time.Second
	natsSource      = "pmm"
)

// PmmServer holds the objects that make up the pmm server.
type PmmServer struct {
	Settings *config.Settings
	Handle   *config.Handle

	// storage
	SqlDB     *sql.DB
	Trades    *state.TradeDB
	Tokens    *state.TokenDB
	TokenSync *tokensync.Syncer
	Redis     *redis.Client

	// chains, btc and solana ones stay nil when not configured
	Router   *etherman.RouterHandle
	Chains   *etherman.ChainPool
	Explorer *explorer.Pool
	BtcRpc   *btcrpc.RpcClient
	BtcOp    *assembler.TaprootOperator
	Solman   *solman.Solman

	// settlement
	Solver    *solver.Client
	Queue     *asynq.Client
	Inspector *asynq.Inspector
	Service   *settlement.Service
	Workers   *settlement.Server

	Alerts   alert.Sink
	Monitor  *monitor.Monitor
	Reporter *reporter.HttpReporter

	closers []func()
}

// NewPmmServer builds every component. Nothing runs until Start.
func NewPmmServer(s *config.Settings) (*PmmServer, error) {
	srv := &PmmServer{Settings: s, Handle: config.NewHandle(s.Environment)}
	ok := false
	defer func() {
		if !ok {
			srv.Close()
		}
	}()

	// 1) storage
	sqldb, err := database.OpenSqlite(s.DbFilePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	srv.SqlDB = sqldb
	srv.closers = append(srv.closers, func() { sqldb.Close() })

	if srv.Trades, err = state.NewTradeDB(sqldb); err != nil {
		return nil, fmt.Errorf("trade db: %w", err)
	}
	srv.closers = append(srv.closers, srv.Trades.Close)
	if srv.Tokens, err = state.NewTokenDB(sqldb); err != nil {
		return nil, fmt.Errorf("token db: %w", err)
	}
	srv.closers = append(srv.closers, srv.Tokens.Close)
	if err := srv.seedTokens(); err != nil {
		return nil, err
	}

	redisOpt := asynq.RedisClientOpt{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB}
	srv.Redis = redis.NewClient(&redis.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
	srv.closers = append(srv.closers, func() { srv.Redis.Close() })

	// 2) alerts
	srv.Alerts, err = srv.setupAlerts()
	if err != nil {
		return nil, err
	}

	// 3) evm side
	evmKey, err := etherman.StringToPrivateKey(s.EvmPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("evm private key: %w", err)
	}
	if srv.Router, err = etherman.NewRouterHandle(srv.Handle); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	srv.closers = append(srv.closers, srv.Router.Close)
	srv.Chains = etherman.NewChainPool(srv.Handle, evmKey)
	srv.closers = append(srv.closers, srv.Chains.Close)
	evmStrategy := transfer.NewEvmStrategy(transfer.PoolChains(srv.Chains), srv.Router, srv.Alerts)

	// 4) btc side
	var btcStrategy transfer.Strategy
	if s.BtcPrivateKey != "" {
		if btcStrategy, err = srv.setupBtc(); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("PMM_BTC_PRIVATE_KEY not set, bitcoin settlement disabled")
	}

	// 5) solana side
	var solStrategy transfer.Strategy
	if s.SolanaPrivateKey != "" && s.SolanaProgramId != "" {
		srv.Solman, err = solman.NewSolman(&solman.Config{
			RpcUrl:     s.Environment.SolanaRpcUrl,
			ProgramId:  s.SolanaProgramId,
			PrivateKey: s.SolanaPrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("solana: %w", err)
		}
		srv.closers = append(srv.closers, srv.Handle.Subscribe(func(env config.EnvironmentConfig) {
			srv.Solman.SetEndpoint(env.SolanaRpcUrl)
		}))
		solStrategy = transfer.NewSolanaStrategy(srv.Solman, srv.Router, srv.Alerts)
		logger.WithField("address", srv.Solman.Address().String()).Info("solana wallet")
	} else {
		logger.Warn("solana key or program id not set, solana settlement disabled")
	}

	// 6) settlement pipeline
	encoding, err := transfer.ParseDescriptorEncoding(s.DescriptorEncoding)
	if err != nil {
		return nil, err
	}

	srv.Solver = solver.NewClientFromHandle(srv.Handle, solverTimeout)
	srv.closers = append(srv.closers, srv.Solver.Close)
	srv.TokenSync = tokensync.New(tokensync.Config{Schedule: s.TokenSyncSchedule}, srv.Solver, srv.Tokens)
	srv.Queue = asynq.NewClient(redisOpt)
	srv.closers = append(srv.closers, func() { srv.Queue.Close() })
	srv.Inspector = asynq.NewInspector(redisOpt)
	srv.closers = append(srv.closers, func() { srv.Inspector.Close() })

	producer := settlement.NewAsynqProducer(srv.Queue, s.SubmitMaxRetry)
	transferWorker := settlement.NewTransferWorker(
		settlement.TransferWorkerConfig{
			PmmId:      s.PmmId,
			MaxRetries: s.TransferMaxRetries,
			RetryDelay: s.TransferRetryDelay,
			Encoding:   encoding,
		},
		srv.Router,
		srv.Tokens,
		transfer.NewFactory(evmStrategy, btcStrategy, solStrategy),
		producer,
		srv.Trades,
		ledger.New(srv.Redis, 0),
	)
	submitWorker := settlement.NewSubmitWorker(s.PmmId, evmKey, srv.Router, srv.Solver, srv.Trades)

	srv.Service = settlement.NewService(srv.Trades, producer)
	srv.Workers = settlement.NewServer(
		settlement.ServerConfig{RedisOpt: redisOpt, Concurrency: s.WorkerConcurrency},
		settlement.NewServeMux(transferWorker, submitWorker),
	)

	// 7) balance monitor
	var assets []monitor.Asset
	if srv.Explorer != nil {
		assets = append(assets, monitor.BtcAsset(srv.Explorer, srv.BtcOp.Address().EncodeAddress()))
	}
	if srv.Solman != nil {
		assets = append(assets, monitor.SolAsset(srv.Solman))
	}
	srv.Monitor = monitor.New(
		monitor.Config{Schedule: s.MonitorSchedule, MinBalanceUsd: s.MinBalanceUsd},
		price.NewCoinGecko(s.CoinGeckoUrl, srv.Redis),
		srv.Alerts,
		assets...,
	)

	// 8) http reporter
	srv.Reporter = reporter.NewHttpReporter(s.HttpIp, s.HttpPort, srv.Trades, srv.Service, srv.Inspector)

	ok = true
	return srv, nil
}

// seedTokens registers the native assets and the tokens of the config file.
// The backend list is merged in by TokenSync once the server starts.
func (srv *PmmServer) seedTokens() error {
	ctx := context.Background()
	for _, token := range state.DefaultTokens() {
		if err := srv.Tokens.Upsert(ctx, token); err != nil {
			return fmt.Errorf("seed tokens: %w", err)
		}
	}
	for _, t := range srv.Settings.Tokens {
		err := srv.Tokens.Upsert(ctx, &state.Token{
			NetworkId:     t.NetworkId,
			NetworkType:   state.NetworkType(t.NetworkType),
			TokenAddress:  t.TokenAddress,
			TokenSymbol:   t.TokenSymbol,
			TokenDecimals: t.TokenDecimals,
		})
		if err != nil {
			return fmt.Errorf("config token %s/%s: %w", t.NetworkId, t.TokenAddress, err)
		}
	}
	return nil
}

func (srv *PmmServer) setupAlerts() (alert.Sink, error) {
	s := srv.Settings
	var sinks alert.Multi
	if s.TelegramBotToken != "" && s.TelegramChatId != "" {
		sinks = append(sinks, alert.NewTelegram(s.TelegramBotToken, s.TelegramChatId))
	}
	if s.NatsUrl != "" {
		nc, err := alert.NewNatsSink(s.NatsUrl, alert.DefaultSubject, natsSource+":"+s.PmmId)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		srv.closers = append(srv.closers, nc.Close)
		sinks = append(sinks, nc)
	}
	if len(sinks) == 0 {
		logger.Warn("no alert sink configured, alerts are only logged")
		return alert.Nop{}, nil
	}
	return sinks, nil
}

func (srv *PmmServer) setupBtc() (transfer.Strategy, error) {
	s := srv.Settings
	params, err := assembler.ParamsByName(s.BtcNetwork)
	if err != nil {
		return nil, err
	}
	if srv.BtcOp, err = assembler.NewTaprootOperatorFromWIF(s.BtcPrivateKey, params); err != nil {
		return nil, fmt.Errorf("btc private key: %w", err)
	}

	providers, err := explorer.DefaultProviders(s.BtcNetwork, explorerTimeout)
	if err != nil {
		return nil, err
	}
	srv.Explorer = explorer.NewPool(explorer.Config{
		Timeout:    explorerTimeout,
		Attempts:   explorerRetries,
		RetryDelay: explorerDelay,
		MaxFeeRate: s.BtcMaxFeeRate,
	}, providers...)

	if s.BtcRpcServer != "" {
		srv.BtcRpc, err = btcrpc.NewRpcClient(&btcrpc.RpcClientConfig{
			ServerAddr: s.BtcRpcServer,
			Port:       s.BtcRpcPort,
			Username:   s.BtcRpcUser,
			Pwd:        s.BtcRpcPwd,
		})
		if err != nil {
			return nil, fmt.Errorf("btc rpc %s:%s: %w", s.BtcRpcServer, s.BtcRpcPort, err)
		}
		srv.closers = append(srv.closers, srv.BtcRpc.Close)
		srv.Explorer.Add(srv.BtcRpc)
	}

	logger.WithFields(logger.Fields{
		"network": s.BtcNetwork,
		"address": srv.BtcOp.Address().EncodeAddress(),
	}).Info("bitcoin wallet")

	return transfer.NewBtcStrategy(srv.Explorer, &assembler.Assembler{ChainConfig: params, Op: srv.BtcOp}, srv.Alerts), nil
}

// Start turns on token sync, workers, monitor and reporter. wg is released
// when all of them returned after ctx is cancelled.
func (srv *PmmServer) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := srv.TokenSync.Start(); err != nil {
		return err
	}
	if err := srv.Monitor.Start(); err != nil {
		srv.TokenSync.Stop()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		srv.Monitor.Stop()
		srv.TokenSync.Stop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Workers.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatalf("settlement workers: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Reporter.Run(ctx); err != nil {
			logger.Fatalf("http reporter: %v", err)
		}
	}()

	logger.WithFields(logger.Fields{
		"env":   srv.Settings.Environment.Env,
		"pmmId": srv.Settings.PmmId,
	}).Info("pmm server started")
	return nil
}

// Close releases clients in reverse creation order.
func (srv *PmmServer) Close() {
	for i := len(srv.closers) - 1; i >= 0; i-- {
		srv.closers[i]()
	}
	srv.closers = nil
}

// Create, then start the pmm server and wait.
// Press Ctrl-C to kill the server.
func StartPmmServerAndWait(s *config.Settings) {
	srv, err := NewPmmServer(s)
	if err != nil {
		logger.Fatalf("failed to create pmm server: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	if err := srv.Start(ctx, &wg); err != nil {
		logger.Fatalf("failed to start pmm server: %v", err)
	}
	wg.Wait()
}
