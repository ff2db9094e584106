package marketdata

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// batchConcurrency bounds the fan-out degree of batch quote fetches.
const batchConcurrency = 5

// BatchQuotes fetches quotes for many symbols with a bounded fan-out.
// Per-symbol failures are logged and skipped; the batch never fails on a
// single symbol. The returned map contains only the symbols that resolved.
func (c *Client) BatchQuotes(ctx context.Context, symbols []string) map[string]*Quote {
	results := make(map[string]*Quote, len(symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			quote, err := c.GetQuote(ctx, symbol)
			if err != nil {
				c.log.Debug().Err(err).Str("symbol", symbol).Msg("Quote unavailable, skipping")
				return nil
			}
			mu.Lock()
			results[symbol] = quote
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only orders the collection.
	_ = g.Wait()

	return results
}
