package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingSetting = errors.New("missing required setting")
)

// Settings are the process wide values read from env vars or the config file.
type Settings struct {
	Environment EnvironmentConfig

	PmmId            string
	EvmPrivateKey    string // hex
	BtcPrivateKey    string // WIF
	SolanaPrivateKey string // base58
	SolanaProgramId  string

	BtcNetwork    string // mainnet, testnet, regtest
	BtcMaxFeeRate float64
	BtcRpcServer  string // optional bitcoind
	BtcRpcPort    string
	BtcRpcUser    string
	BtcRpcPwd     string

	DescriptorEncoding string // utf8 or typed

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NatsUrl       string

	TelegramBotToken string
	TelegramChatId   string
	CoinGeckoUrl     string

	DbFilePath string
	HttpIp     string
	HttpPort   string
	LogLevel   string

	TransferMaxRetries int
	TransferRetryDelay time.Duration
	SubmitMaxRetry     int
	WorkerConcurrency  int
	MinBalanceUsd      float64
	MonitorSchedule    string
	TokenSyncSchedule  string

	// extra registry entries, only settable from the config file
	Tokens []TokenSetting
}

// TokenSetting is one "tokens:" entry of the config file. It covers
// tokens the backend does not list.
type TokenSetting struct {
	NetworkId     string `mapstructure:"network_id"`
	NetworkType   string `mapstructure:"network_type"`
	TokenAddress  string `mapstructure:"token_address"`
	TokenSymbol   string `mapstructure:"token_symbol"`
	TokenDecimals int    `mapstructure:"token_decimals"`
}

// SetDefaults registers default values on the global viper instance.
func SetDefaults() {
	viper.SetDefault("ENV", string(Production))
	viper.SetDefault("BTC_NETWORK", "mainnet")
	viper.SetDefault("BTC_MAX_FEE_RATE", 5.0)
	viper.SetDefault("CHAIN_DESCRIPTOR_ENCODING", "utf8")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3")
	viper.SetDefault("DB_FILE_PATH", "./pmm.db")
	viper.SetDefault("HTTP_IP", "0.0.0.0")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "production")
	viper.SetDefault("TRANSFER_MAX_RETRIES", 3)
	viper.SetDefault("TRANSFER_RETRY_DELAY", "30s")
	viper.SetDefault("SUBMIT_MAX_RETRY", 25)
	viper.SetDefault("WORKER_CONCURRENCY", 10)
	viper.SetDefault("MIN_BALANCE_USD", 1000.0)
	viper.SetDefault("MONITOR_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("TOKEN_SYNC_SCHEDULE", "*/10 * * * *")
}

// FromViper reads the settings from the global viper instance.
// SOLVER_URL, ROUTER_ADDRESS, ROUTER_RPC_URL and SOLANA_RPC_URL override
// the built-in environment table; EVM_RPC_OVERRIDES and
// PAYMENT_ADDRESS_OVERRIDES take "network=value,network=value".
func FromViper() (*Settings, error) {
	env, err := Lookup(viper.GetString("ENV"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("SOLVER_URL"); v != "" {
		env.SolverUrl = v
	}
	if v := viper.GetString("ROUTER_ADDRESS"); v != "" {
		env.RouterAddress = v
	}
	if v := viper.GetString("ROUTER_RPC_URL"); v != "" {
		env.RouterRpcUrl = v
	}
	if v := viper.GetString("SOLANA_RPC_URL"); v != "" {
		env.SolanaRpcUrl = v
	}
	for k, v := range parsePairs(viper.GetString("EVM_RPC_OVERRIDES")) {
		env.EvmRpcMap[k] = v
	}
	for k, v := range parsePairs(viper.GetString("PAYMENT_ADDRESS_OVERRIDES")) {
		env.PaymentAddressMap[k] = v
	}

	s := &Settings{
		Environment:        env,
		PmmId:              viper.GetString("PMM_ID"),
		EvmPrivateKey:      viper.GetString("PMM_EVM_PRIVATE_KEY"),
		BtcPrivateKey:      viper.GetString("PMM_BTC_PRIVATE_KEY"),
		SolanaPrivateKey:   viper.GetString("PMM_SOLANA_PRIVATE_KEY"),
		SolanaProgramId:    viper.GetString("SOLANA_PROGRAM_ID"),
		BtcNetwork:         viper.GetString("BTC_NETWORK"),
		BtcMaxFeeRate:      viper.GetFloat64("BTC_MAX_FEE_RATE"),
		BtcRpcServer:       viper.GetString("BTC_RPC_SERVER"),
		BtcRpcPort:         viper.GetString("BTC_RPC_PORT"),
		BtcRpcUser:         viper.GetString("BTC_RPC_USERNAME"),
		BtcRpcPwd:          viper.GetString("BTC_RPC_PWD"),
		DescriptorEncoding: viper.GetString("CHAIN_DESCRIPTOR_ENCODING"),
		RedisAddr:          viper.GetString("REDIS_ADDR"),
		RedisPassword:      viper.GetString("REDIS_PASSWORD"),
		RedisDB:            viper.GetInt("REDIS_DB"),
		NatsUrl:            viper.GetString("NATS_URL"),
		TelegramBotToken:   viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatId:     viper.GetString("TELEGRAM_CHAT_ID"),
		CoinGeckoUrl:       viper.GetString("COINGECKO_URL"),
		DbFilePath:         viper.GetString("DB_FILE_PATH"),
		HttpIp:             viper.GetString("HTTP_IP"),
		HttpPort:           viper.GetString("HTTP_PORT"),
		LogLevel:           viper.GetString("LOG_LEVEL"),
		TransferMaxRetries: viper.GetInt("TRANSFER_MAX_RETRIES"),
		TransferRetryDelay: viper.GetDuration("TRANSFER_RETRY_DELAY"),
		SubmitMaxRetry:     viper.GetInt("SUBMIT_MAX_RETRY"),
		WorkerConcurrency:  viper.GetInt("WORKER_CONCURRENCY"),
		MinBalanceUsd:      viper.GetFloat64("MIN_BALANCE_USD"),
		MonitorSchedule:    viper.GetString("MONITOR_SCHEDULE"),
		TokenSyncSchedule:  viper.GetString("TOKEN_SYNC_SCHEDULE"),
	}
	if err := viper.UnmarshalKey("TOKENS", &s.Tokens); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}

	return s, s.Validate()
}

func (s *Settings) Validate() error {
	required := map[string]string{
		"PMM_ID":              s.PmmId,
		"PMM_EVM_PRIVATE_KEY": s.EvmPrivateKey,
		"REDIS_ADDR":          s.RedisAddr,
	}
	for k, v := range required {
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, k)
		}
	}
	for i, t := range s.Tokens {
		if t.NetworkId == "" || t.NetworkType == "" || t.TokenAddress == "" {
			return fmt.Errorf("%w: tokens[%d] needs network_id, network_type and token_address", ErrMissingSetting, i)
		}
	}
	return nil
}

func parsePairs(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}
