package trader

import (
	"context"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/clients/marketdata"
)

const indicatorLookbackDays = 60

// buildTechnicalContext computes the SPY indicator readings for the scan
// prompt. Any failure yields a zero context; the scan proceeds without it.
func buildTechnicalContext(ctx context.Context, md *marketdata.Client, log zerolog.Logger) TechnicalContext {
	closes, err := md.GetDailyCloses(ctx, "SPY", indicatorLookbackDays)
	if err != nil || len(closes) < 50 {
		log.Debug().Err(err).Int("closes", len(closes)).Msg("Skipping technical context")
		return TechnicalContext{}
	}

	var tech TechnicalContext
	if rsi := talib.Rsi(closes, 14); len(rsi) > 0 {
		tech.RSI14 = rsi[len(rsi)-1]
	}
	if sma := talib.Sma(closes, 20); len(sma) > 0 {
		tech.SMA20 = sma[len(sma)-1]
	}
	if sma := talib.Sma(closes, 50); len(sma) > 0 {
		tech.SMA50 = sma[len(sma)-1]
	}
	return tech
}
