// Package wallet implements the wallet connection bounded context: the
// connection tracker, the provider bridge and the network guard.
package wallet

import (
	"context"
	"time"

	"github.com/fd1az/genip/business/wallet/app"
	walletDI "github.com/fd1az/genip/business/wallet/di"
	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/business/wallet/infra/chain"
	"github.com/fd1az/genip/business/wallet/infra/eip1193"
	"github.com/fd1az/genip/business/wallet/infra/session"
	"github.com/fd1az/genip/internal/config"
	"github.com/fd1az/genip/internal/di"
	"github.com/fd1az/genip/internal/logger"
	"github.com/fd1az/genip/internal/monolith"
)

// Module implements the wallet bounded context.
type Module struct{}

// ChainFromConfig builds the required chain descriptor.
func ChainFromConfig(cfg config.ChainConfig) domain.ChainDescriptor {
	return domain.ChainDescriptor{
		ID:   cfg.ID,
		Name: cfg.Name,
		NativeCurrency: domain.NativeCurrency{
			Name:     cfg.CurrencyName,
			Symbol:   cfg.CurrencySymbol,
			Decimals: cfg.CurrencyDecimals,
		},
		RPCURLs:           cfg.RPCURLs,
		BlockExplorerURLs: cfg.BlockExplorerURLs,
	}
}

// RegisterServices registers all wallet services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, walletDI.Provider, func(sr di.ServiceRegistry) *eip1193.Provider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		pcfg := eip1193.DefaultConfig(cfg.Wallet.ProviderURL)
		pcfg.RequestTimeout = cfg.Wallet.RequestTimeout
		pcfg.MaxReconnects = cfg.Wallet.MaxReconnects
		if cfg.Wallet.InitialBackoff > 0 {
			pcfg.InitialBackoff = cfg.Wallet.InitialBackoff
		}
		if cfg.Wallet.MaxBackoff > 0 {
			pcfg.MaxBackoff = cfg.Wallet.MaxBackoff
		}

		p, err := eip1193.New(pcfg, log)
		if err != nil {
			panic("failed to create wallet provider: " + err.Error())
		}
		return p
	})

	di.RegisterToken(c, walletDI.ChainReader, func(sr di.ServiceRegistry) *chain.Reader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		r, err := chain.NewReader(context.Background(), chain.DefaultConfig(cfg.Chain.ID, cfg.Chain.RPCURLs...), log)
		if err != nil {
			panic("failed to create chain reader: " + err.Error())
		}
		return r
	})

	di.RegisterToken(c, walletDI.Markers, func(sr di.ServiceRegistry) session.Store {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		ctx := context.Background()
		store, err := session.New(ctx, session.Config{
			Backend:       cfg.Session.Backend,
			FilePath:      cfg.Session.FilePath,
			RedisAddr:     cfg.Session.RedisAddr,
			RedisPassword: cfg.Session.RedisPassword,
			RedisDB:       cfg.Session.RedisDB,
			KeyPrefix:     cfg.Session.KeyPrefix,
			TTL:           cfg.Session.TTL,
		}, log)
		if err != nil {
			// The marker only restores sessions across restarts.
			log.Warn(ctx, "session store unavailable, using memory", "backend", cfg.Session.Backend, "error", err)
			return session.NewMemoryStore()
		}
		return store
	})

	di.RegisterToken(c, walletDI.Bridge, func(sr di.ServiceRegistry) *app.Bridge {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		bcfg := app.DefaultBridgeConfig(ChainFromConfig(cfg.Chain))
		if cfg.Wallet.Type != "" {
			bcfg.WalletType = cfg.Wallet.Type
		}
		setDuration(&bcfg.SettleDelay, cfg.Wallet.SettleDelay)
		setDuration(&bcfg.ConfirmationTimeout, cfg.Wallet.ConfirmationTimeout)
		setDuration(&bcfg.ReceiptPollInterval, cfg.Wallet.ReceiptPollInterval)
		setDuration(&bcfg.BalanceCacheTTL, cfg.Wallet.BalanceCacheTTL)

		b, err := app.NewBridge(bcfg,
			walletDI.GetProvider(sr),
			walletDI.GetChainReader(sr),
			walletDI.GetMarkers(sr),
			log,
		)
		if err != nil {
			panic("failed to create wallet bridge: " + err.Error())
		}
		return b
	})

	di.RegisterToken(c, walletDI.Guard, func(sr di.ServiceRegistry) *app.Guard {
		return app.NewGuard(walletDI.GetBridge(sr))
	})

	return nil
}

// Startup opens the wallet connection and restores a previous session.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	sr := mono.Services()

	walletDI.GetProvider(sr).Open(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := walletDI.GetChainReader(sr).Ping(pingCtx); err != nil {
		// Reads retry per call; a slow node must not block startup.
		log.Warn(ctx, "chain rpc not ready", "error", err)
	}

	bridge := walletDI.GetBridge(sr)
	bridge.Start(ctx)
	bridge.Rehydrate(ctx)

	log.Info(ctx, "wallet module started", "chain_id", bridge.Chain().ID, "provider_available", bridge.Available())
	return nil
}

// Shutdown stops the bridge and releases its resources.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()

	walletDI.GetBridge(sr).Close()
	if err := walletDI.GetProvider(sr).Close(); err != nil {
		mono.Logger().Warn(ctx, "closing wallet provider", "error", err)
	}
	walletDI.GetChainReader(sr).Close()
	return walletDI.GetMarkers(sr).Close()
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
