// Package di contains dependency injection tokens for the wallet context.
package di

import (
	"github.com/fd1az/genip/business/wallet/app"
	"github.com/fd1az/genip/business/wallet/infra/chain"
	"github.com/fd1az/genip/business/wallet/infra/eip1193"
	"github.com/fd1az/genip/business/wallet/infra/session"
	"github.com/fd1az/genip/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Bridge = di.NewToken[*app.Bridge]("wallet.Bridge")
	Guard  = di.NewToken[*app.Guard]("wallet.Guard")
)

// Private dependency tokens - internal to wallet module
var (
	Provider    = di.NewToken[*eip1193.Provider]("wallet:provider")
	ChainReader = di.NewToken[*chain.Reader]("wallet:chainReader")
	Markers     = di.NewToken[session.Store]("wallet:markers")
)

func GetBridge(c di.ServiceRegistry) *app.Bridge {
	return di.GetToken(c, Bridge)
}

func GetGuard(c di.ServiceRegistry) *app.Guard {
	return di.GetToken(c, Guard)
}

func GetProvider(c di.ServiceRegistry) *eip1193.Provider {
	return di.GetToken(c, Provider)
}

func GetChainReader(c di.ServiceRegistry) *chain.Reader {
	return di.GetToken(c, ChainReader)
}

func GetMarkers(c di.ServiceRegistry) session.Store {
	return di.GetToken(c, Markers)
}
