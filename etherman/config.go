package etherman

import "github.com/ethereum/go-ethereum/common"

type Config struct {
	// URL is the URL of the node serving the router chain
	URL string

	// RouterAddress is the deployed router contract
	RouterAddress common.Address
}

type ChainConfig struct {
	// NetworkId is the id the router uses for this chain, e.g. "ethereum"
	NetworkId string

	// URL of the json rpc
	URL string

	// PaymentAddress is the payment contract PMMs settle through
	PaymentAddress common.Address
}
