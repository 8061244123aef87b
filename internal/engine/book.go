package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Level is one aggregated price level of a quote snapshot.
type Level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	// Unbounded levels come from candle touches without volume and can
	// absorb any order size.
	Unbounded bool
}

// bidLess orders bid levels by price descending, so Min() is the best bid.
func bidLess(a, b Level) bool {
	return a.Price.GreaterThan(b.Price)
}

// askLess orders ask levels by price ascending, so Min() is the best ask.
func askLess(a, b Level) bool {
	return a.Price.LessThan(b.Price)
}

// QuoteBook holds the current bid/ask ladders of a single security. Each
// quote message replaces the ladders wholesale; matched volume is consumed
// from them until the next replacement.
//
// QuoteBook is not safe for concurrent use; the owning engine serializes
// access.
type QuoteBook struct {
	security domain.SecurityID
	bids     *btree.BTreeG[Level]
	asks     *btree.BTreeG[Level]
}

const btreeDegree = 32

// NewQuoteBook creates an empty book for the given security.
func NewQuoteBook(security domain.SecurityID) *QuoteBook {
	return &QuoteBook{
		security: security,
		bids:     btree.NewG[Level](btreeDegree, bidLess),
		asks:     btree.NewG[Level](btreeDegree, askLess),
	}
}

// Security returns the book's security.
func (b *QuoteBook) Security() domain.SecurityID {
	return b.security
}

// Replace swaps in a new snapshot. Levels with non-positive volume are
// dropped and duplicate prices are aggregated. A snapshot whose best bid is
// not strictly below its best ask is rejected with domain.ErrCrossedBook and
// the previous snapshot is kept.
func (b *QuoteBook) Replace(bids, asks []domain.Quote) error {
	newBids := buildLadder(bids, bidLess)
	newAsks := buildLadder(asks, askLess)

	bestBid, hasBid := newBids.Min()
	bestAsk, hasAsk := newAsks.Min()
	if hasBid && hasAsk && !bestBid.Price.LessThan(bestAsk.Price) {
		return domain.ErrCrossedBook
	}

	b.bids = newBids
	b.asks = newAsks
	return nil
}

func buildLadder(quotes []domain.Quote, less btree.LessFunc[Level]) *btree.BTreeG[Level] {
	tree := btree.NewG[Level](btreeDegree, less)
	for _, q := range quotes {
		if !q.Volume.IsPositive() {
			continue
		}
		lvl := Level{Price: q.Price, Volume: q.Volume}
		if existing, ok := tree.Get(lvl); ok {
			lvl.Volume = lvl.Volume.Add(existing.Volume)
		}
		tree.ReplaceOrInsert(lvl)
	}
	return tree
}

// Touch replaces the book with a locked single-level snapshot at price on
// both sides. A zero volume makes the level unbounded.
func (b *QuoteBook) Touch(price, volume decimal.Decimal) {
	lvl := Level{Price: price, Volume: volume, Unbounded: !volume.IsPositive()}
	if lvl.Unbounded {
		lvl.Volume = decimal.Zero
	}
	b.bids = btree.NewG[Level](btreeDegree, bidLess)
	b.asks = btree.NewG[Level](btreeDegree, askLess)
	b.bids.ReplaceOrInsert(lvl)
	b.asks.ReplaceOrInsert(lvl)
}

// Clear empties both sides.
func (b *QuoteBook) Clear() {
	b.bids.Clear(false)
	b.asks.Clear(false)
}

// side returns the ladder resting orders of the given side would sit on:
// buy orders on bids, sell orders on asks.
func (b *QuoteBook) side(s domain.Side) *btree.BTreeG[Level] {
	if s == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// Best returns the best level of the given side.
func (b *QuoteBook) Best(s domain.Side) (Level, bool) {
	return b.side(s).Min()
}

// BestBid returns the highest bid level.
func (b *QuoteBook) BestBid() (Level, bool) {
	return b.bids.Min()
}

// BestAsk returns the lowest ask level.
func (b *QuoteBook) BestAsk() (Level, bool) {
	return b.asks.Min()
}

// Mid returns the midpoint of best bid and best ask when both exist.
func (b *QuoteBook) Mid() (decimal.Decimal, bool) {
	bid, okBid := b.bids.Min()
	ask, okAsk := b.asks.Min()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Consume removes volume from the level at price on the given side. The
// level disappears once exhausted; unbounded levels are never depleted.
func (b *QuoteBook) Consume(s domain.Side, price, volume decimal.Decimal) {
	tree := b.side(s)
	lvl, ok := tree.Get(Level{Price: price})
	if !ok || lvl.Unbounded {
		return
	}
	lvl.Volume = lvl.Volume.Sub(volume)
	if lvl.Volume.IsPositive() {
		tree.ReplaceOrInsert(lvl)
		return
	}
	tree.Delete(lvl)
}

// Walk iterates levels of the given side best first. The callback returns
// true to continue, false to stop.
func (b *QuoteBook) Walk(s domain.Side, fn func(Level) bool) {
	b.side(s).Ascend(fn)
}

// Depth returns up to n levels from each side, best first.
func (b *QuoteBook) Depth(n int) (bids, asks []Level) {
	return topLevels(b.bids, n), topLevels(b.asks, n)
}

func topLevels(tree *btree.BTreeG[Level], n int) []Level {
	if n <= 0 {
		return []Level{}
	}
	levels := make([]Level, 0, n)
	tree.Ascend(func(lvl Level) bool {
		levels = append(levels, lvl)
		return len(levels) < n
	})
	return levels
}

// IsEmpty reports whether both sides are empty.
func (b *QuoteBook) IsEmpty() bool {
	return b.bids.Len() == 0 && b.asks.Len() == 0
}

// BookManager is a thread-safe map of security → QuoteBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[domain.SecurityID]*QuoteBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[domain.SecurityID]*QuoteBook),
	}
}

// Get returns the book for the security if one exists.
func (bm *BookManager) Get(security domain.SecurityID) (*QuoteBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[security]
	return book, ok
}

// GetOrCreate returns the order book for the given security, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(security domain.SecurityID) *QuoteBook {
	bm.mu.RLock()
	book, ok := bm.books[security]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[security]; ok {
		return book
	}
	book = NewQuoteBook(security)
	bm.books[security] = book
	return book
}

// ApplyQuotes replaces the snapshot of a security.
func (bm *BookManager) ApplyQuotes(security domain.SecurityID, bids, asks []domain.Quote) error {
	return bm.GetOrCreate(security).Replace(bids, asks)
}

// ApplyTouch sets a locked momentary book for a candle touch.
func (bm *BookManager) ApplyTouch(security domain.SecurityID, price, volume decimal.Decimal) {
	bm.GetOrCreate(security).Touch(price, volume)
}

// ClearTouch empties the book of a security after a candle replay.
func (bm *BookManager) ClearTouch(security domain.SecurityID) {
	if book, ok := bm.Get(security); ok {
		book.Clear()
	}
}

// BestBid returns the top bid of a security.
func (bm *BookManager) BestBid(security domain.SecurityID) (Level, bool) {
	book, ok := bm.Get(security)
	if !ok {
		return Level{}, false
	}
	return book.BestBid()
}

// BestAsk returns the top ask of a security.
func (bm *BookManager) BestAsk(security domain.SecurityID) (Level, bool) {
	book, ok := bm.Get(security)
	if !ok {
		return Level{}, false
	}
	return book.BestAsk()
}

// Reset drops every book.
func (bm *BookManager) Reset() {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.books = make(map[domain.SecurityID]*QuoteBook)
}
