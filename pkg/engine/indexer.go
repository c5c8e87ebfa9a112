package engine

// slotIndexer gives a unique dense index to a (period, day) pair of the grid and vice versa
type slotIndexer interface {
	// Returns a unique index in [0, periods*days) for the period and day
	Index(period, day uint64) uint64
	// Returns the period and day of an index
	Attributes(index uint64) (period uint64, day uint64)
}

func newSlotIndexer(periods, days uint64) slotIndexer {
	return &slotIndexerImplementation{
		periods: periods,
		days:    days,
	}
}

type slotIndexerImplementation struct {
	periods uint64
	days    uint64
}

func (indexer *slotIndexerImplementation) Index(period, day uint64) uint64 {
	return period + indexer.periods*day
}

func (indexer *slotIndexerImplementation) Attributes(index uint64) (period, day uint64) {
	period = index % indexer.periods
	day = index / indexer.periods
	return period, day
}
