// Package tokensync keeps the token registry in line with the token list
// of the solver backend.
package tokensync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/solver"
	"github.com/TEENet-io/pmm-go/state"
)

const (
	DefaultSchedule = "*/10 * * * *"
	syncTimeout     = time.Minute
)

var (
	ErrEmptyTokenList = errors.New("backend returned no tokens")
)

type TokenSource interface {
	GetTokens(ctx context.Context) ([]solver.Token, error)
}

type TokenStore interface {
	Upsert(ctx context.Context, token *state.Token) error
}

type Config struct {
	Schedule string
}

// Syncer upserts every backend token into the store. Tokens the backend
// stops listing stay in the store; trades that already reference them
// must still settle.
type Syncer struct {
	cfg    Config
	source TokenSource
	store  TokenStore
	cron   *cron.Cron
}

func New(cfg Config, source TokenSource, store TokenStore) *Syncer {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Syncer{
		cfg:    cfg,
		source: source,
		store:  store,
		cron:   cron.New(),
	}
}

// Sync returns how many tokens were written.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	tokens, err := s.source.GetTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, ErrEmptyTokenList
	}

	n := 0
	for _, t := range tokens {
		token, ok := convert(t)
		if !ok {
			logger.WithFields(logger.Fields{
				"tokenId":   t.TokenId,
				"networkId": t.NetworkId,
				"type":      t.NetworkType,
			}).Debug("skipping backend token")
			continue
		}
		if err := s.store.Upsert(ctx, token); err != nil {
			return n, fmt.Errorf("upsert %s/%s: %w", token.NetworkId, token.TokenAddress, err)
		}
		n++
	}
	return n, nil
}

// convert drops tokens on networks no strategy settles.
func convert(t solver.Token) (*state.Token, bool) {
	if t.NetworkId == "" || t.TokenAddress == "" || t.TokenDecimals < 0 {
		return nil, false
	}
	networkType := state.NetworkType(strings.ToUpper(strings.TrimSpace(t.NetworkType)))
	switch networkType {
	case state.NetworkEVM, state.NetworkBTC, state.NetworkTBTC, state.NetworkSolana:
	default:
		return nil, false
	}
	return &state.Token{
		NetworkId:     t.NetworkId,
		NetworkType:   networkType,
		TokenAddress:  t.TokenAddress,
		TokenSymbol:   t.TokenSymbol,
		TokenDecimals: t.TokenDecimals,
	}, true
}

// Start syncs once, then on the schedule. A failed first sync is logged;
// the registry keeps serving whatever it already holds.
func (s *Syncer) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return fmt.Errorf("schedule token sync: %w", err)
	}

	s.run()
	s.cron.Start()
	logger.WithField("schedule", s.cfg.Schedule).Info("token sync started")
	return nil
}

func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("token sync stopped")
}

func (s *Syncer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	n, err := s.Sync(ctx)
	if err != nil {
		logger.WithField("err", err).Error("token sync failed")
		return
	}
	logger.WithField("tokens", n).Debug("token registry synced")
}
