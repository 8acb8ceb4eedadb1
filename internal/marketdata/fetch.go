package marketdata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"paperledger/internal/models"
)

// maxConcurrentFetches bounds parallel upstream requests.
const maxConcurrentFetches = 4

// ChainRequest names the symbol and expirations one position needs priced.
type ChainRequest struct {
	Symbol      string
	Expirations []time.Time
}

// FetchSnapshots pulls, in parallel, one chain snapshot per requested symbol
// covering all requested expirations. A symbol whose fetch fails is simply
// absent from the result; the caller decides what that means per position.
func FetchSnapshots(ctx context.Context, p Provider, requests []ChainRequest) map[string]*models.ChainSnapshot {
	var mu sync.Mutex
	snapshots := make(map[string]*models.ChainSnapshot, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, req := range requests {
		req := req
		g.Go(func() error {
			snap, err := fetchSnapshot(ctx, p, req)
			if err != nil {
				// Reported through absence; RevalueAll turns a missing
				// chain into a per-position pricing failure.
				return nil
			}
			mu.Lock()
			snapshots[req.Symbol] = snap
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors, so Wait only gates on completion.
	_ = g.Wait()
	return snapshots
}

func fetchSnapshot(ctx context.Context, p Provider, req ChainRequest) (*models.ChainSnapshot, error) {
	snap := &models.ChainSnapshot{
		Symbol: req.Symbol,
		AsOf:   time.Now().UTC(),
	}

	quote, err := p.GetQuote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	snap.UnderlyingPrice = quote.Last

	for _, exp := range req.Expirations {
		contracts, err := p.GetOptionChain(ctx, req.Symbol, exp)
		if err != nil {
			return nil, err
		}
		snap.Contracts = append(snap.Contracts, contracts...)
	}
	return snap, nil
}

// RequestsForPositions derives the distinct chain requests needed to revalue
// a set of positions. Non-OPEN positions contribute nothing.
func RequestsForPositions(positions []*models.Position) []ChainRequest {
	bySymbol := make(map[string]map[time.Time]bool)
	var order []string

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		if bySymbol[p.Symbol] == nil {
			bySymbol[p.Symbol] = make(map[time.Time]bool)
			order = append(order, p.Symbol)
		}
		for _, exp := range p.Expirations() {
			bySymbol[p.Symbol][exp] = true
		}
	}

	requests := make([]ChainRequest, 0, len(order))
	for _, sym := range order {
		req := ChainRequest{Symbol: sym}
		for exp := range bySymbol[sym] {
			req.Expirations = append(req.Expirations, exp)
		}
		requests = append(requests, req)
	}
	return requests
}
