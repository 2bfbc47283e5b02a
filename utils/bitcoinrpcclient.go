package utils

import (
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"
)

type BTCNodeConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

func (c BTCNodeConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func BuildBTCClient(cfg BTCNodeConfig) (*rpcclient.Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("btc node host is not configured")
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Address(),
		User:         cfg.Username,
		Pass:         cfg.Password,
		HTTPPostMode: true, // Bitcoin core only supports HTTP POST mode
		DisableTLS:   true, // Bitcoin core does not provide TLS by default
	}
	return rpcclient.New(connCfg, nil)
}
