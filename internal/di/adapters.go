package di

import (
	"github.com/quangtd/vnsentry/internal/modules/marketctx"
	"github.com/quangtd/vnsentry/internal/modules/settings"
)

// settingsMarketState exposes the market-wide flags kept in runtime
// settings as the context module's MarketStateSource.
type settingsMarketState struct {
	svc *settings.Service
}

func (a settingsMarketState) MarketState() marketctx.MarketState {
	return marketctx.MarketState{
		EarningsSeason:    a.svc.EarningsSeason(),
		PolicyUncertainty: a.svc.PolicyUncertainty(),
	}
}
