package domain

// SnapshotPoint is one token's market state recorded at the end of a
// market-update cycle. Corresponds to the snapshot_history table.
type SnapshotPoint struct {
	TokenAddress string
	TimestampMs  int64 // Unix timestamp in milliseconds
	Price        float64
	Volume24h    float64
	MarketCap    float64
}

// PricePoint is the strategy-facing slice of a SnapshotPoint: the price
// and volume history strategies compute indicators over.
type PricePoint struct {
	TimestampMs int64
	Price       float64
	Volume      float64
}

// PricePointFromSnapshot converts a stored snapshot point.
func PricePointFromSnapshot(p *SnapshotPoint) PricePoint {
	return PricePoint{
		TimestampMs: p.TimestampMs,
		Price:       p.Price,
		Volume:      p.Volume24h,
	}
}
