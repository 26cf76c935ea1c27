package factory

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/adapter/wallet"
	"github.com/alfanzaky/socialtx/internal/domain"
)

// WalletBuilder constructs a wallet for one signing mode
type WalletBuilder func(cfg config.WalletConfig) (domain.Wallet, error)

// WalletFactory is a thread-safe registry mapping a wallet mode to its builder
type WalletFactory struct {
	mu       sync.RWMutex
	builders map[string]WalletBuilder
}

// NewWalletFactory creates a registry with the local and remote modes registered
func NewWalletFactory() *WalletFactory {
	f := &WalletFactory{builders: make(map[string]WalletBuilder)}

	f.Register(config.WalletModeLocal, func(cfg config.WalletConfig) (domain.Wallet, error) {
		key, err := wallet.LoadKeypair(cfg.LocalKeypair)
		if err != nil {
			return nil, err
		}
		return wallet.NewLocalWallet(key, cfg.TokenTTL), nil
	})
	f.Register(config.WalletModeRemote, func(cfg config.WalletConfig) (domain.Wallet, error) {
		if strings.TrimSpace(cfg.RemoteURL) == "" {
			return nil, fmt.Errorf("remote wallet url is required")
		}
		return wallet.NewRemoteWallet(cfg, &http.Client{Timeout: cfg.RemoteTimeout}), nil
	})

	return f
}

// Register registers a builder under the given mode
func (f *WalletFactory) Register(mode string, builder WalletBuilder) {
	if builder == nil {
		return
	}

	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[normalized] = builder
}

// Build returns the wallet for cfg.Mode
func (f *WalletFactory) Build(cfg config.WalletConfig) (domain.Wallet, error) {
	normalized := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if normalized == "" {
		return nil, fmt.Errorf("wallet mode is required")
	}

	f.mu.RLock()
	builder, ok := f.builders[normalized]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("wallet mode %s not supported", normalized)
	}

	return builder(cfg)
}
