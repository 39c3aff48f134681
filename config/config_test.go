package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cfg, err := Lookup("PRODUCTION")
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Env)
	addr, err := cfg.PaymentAddress("ethereum")
	assert.NoError(t, err)
	assert.Equal(t, "0x0A497AC4261E37FA4062762C23Cf3cB642C839b8", addr)

	_, err = cfg.PaymentAddress("arbitrum")
	assert.ErrorIs(t, err, ErrMissingPaymentAddress)
	_, err = cfg.EvmRpcUrl("arbitrum")
	assert.ErrorIs(t, err, ErrMissingRpcUrl)

	_, err = Lookup("mars")
	assert.ErrorIs(t, err, ErrUnsupportedEnvironment)
}

func TestLookupReturnsCopies(t *testing.T) {
	a, _ := Lookup("dev")
	a.PaymentAddressMap["ethereum_sepolia"] = "0x0"

	b, _ := Lookup("dev")
	assert.Equal(t, "0x1d8b58438D5Ccc8Fcb4b738C89078f7b4168C9c0", b.PaymentAddressMap["ethereum_sepolia"])
}

func TestHandleNotifiesSubscribers(t *testing.T) {
	initial, _ := Lookup("dev")
	h := NewHandle(initial)

	var seen []Environment
	unsubscribe := h.Subscribe(func(cfg EnvironmentConfig) { seen = append(seen, cfg.Env) })
	h.Subscribe(func(cfg EnvironmentConfig) { seen = append(seen, cfg.Env+"!") })

	require.NoError(t, h.SetEnvironment("staging"))
	assert.Equal(t, Staging, h.Get().Env)
	assert.Equal(t, []Environment{Staging, Staging + "!"}, seen)

	unsubscribe()
	require.NoError(t, h.SetEnvironment("production"))
	assert.Equal(t, []Environment{Staging, Staging + "!", Production + "!"}, seen)

	assert.ErrorIs(t, h.SetEnvironment("nope"), ErrUnsupportedEnvironment)
	assert.Equal(t, Production, h.Get().Env)
}

func TestFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("ENV", "dev")
	viper.Set("PMM_ID", "pmm-test")
	viper.Set("PMM_EVM_PRIVATE_KEY", "0x01")
	viper.Set("SOLVER_URL", "http://localhost:9000")
	viper.Set("EVM_RPC_OVERRIDES", "ethereum_sepolia=http://localhost:8545, base=http://base")
	viper.Set("PAYMENT_ADDRESS_OVERRIDES", "base=0xabc")

	s, err := FromViper()
	require.NoError(t, err)
	assert.Equal(t, "pmm-test", s.PmmId)
	assert.Equal(t, "http://localhost:9000", s.Environment.SolverUrl)
	assert.Equal(t, "http://localhost:8545", s.Environment.EvmRpcMap["ethereum_sepolia"])
	assert.Equal(t, "http://base", s.Environment.EvmRpcMap["base"])
	assert.Equal(t, "0xabc", s.Environment.PaymentAddressMap["base"])
	assert.Equal(t, 3, s.TransferMaxRetries)
	assert.Equal(t, "30s", s.TransferRetryDelay.String())
	assert.Equal(t, 5.0, s.BtcMaxFeeRate)
	assert.Equal(t, "*/5 * * * *", s.MonitorSchedule)

	viper.Set("PMM_ID", "")
	_, err = FromViper()
	assert.ErrorIs(t, err, ErrMissingSetting)
}

const testConfigFile = `
env: dev
pmm_id: pmm-test
pmm_evm_private_key: "0x01"
tokens:
  - network_id: ethereum_sepolia
    network_type: EVM
    token_address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
    token_symbol: USDC
    token_decimals: 6
`

func TestFromViperTokens(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader(testConfigFile)))

	s, err := FromViper()
	require.NoError(t, err)
	assert.Equal(t, "*/10 * * * *", s.TokenSyncSchedule)
	require.Len(t, s.Tokens, 1)
	assert.Equal(t, TokenSetting{
		NetworkId:     "ethereum_sepolia",
		NetworkType:   "EVM",
		TokenAddress:  "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		TokenSymbol:   "USDC",
		TokenDecimals: 6,
	}, s.Tokens[0])

	s.Tokens = append(s.Tokens, TokenSetting{NetworkId: "base_sepolia"})
	assert.ErrorIs(t, s.Validate(), ErrMissingSetting)
}
