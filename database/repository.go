package database

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// BacktestRow is one drained sweep result in the durable store.
type BacktestRow struct {
	TradeID              string  `gorm:"column:trade_id;uniqueIndex;size:36"`
	StopsTriggered       int     `gorm:"column:stops_triggered"`
	TradesTriggered      int     `gorm:"column:trades_triggered"`
	NetProfit            float64 `gorm:"column:net_profit"`
	AverageHoldingPeriod float64 `gorm:"column:average_holding_period"`
	TradeStats           string  `gorm:"column:trade_stats;type:json"`
}

// insertBatchSize limits how many rows ride in one insert statement.
const insertBatchSize = 5000

// ResultRepository writes drained results into the configured table.
type ResultRepository struct {
	db    *Database
	table string
}

// NewResultRepository creates a repository bound to one table.
func NewResultRepository(db *Database, table string) *ResultRepository {
	return &ResultRepository{db: db, table: table}
}

// InitSchema creates the results table if it does not exist.
func (r *ResultRepository) InitSchema() error {
	if err := r.db.db.Table(r.table).AutoMigrate(&BacktestRow{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// InsertIgnore batch-inserts rows, silently skipping any whose trade_id is
// already present. Re-running the reaper over the same cache entries is
// therefore a no-op on the durable side.
func (r *ResultRepository) InsertIgnore(rows []BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		err := r.db.db.Table(r.table).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "trade_id"}},
				DoNothing: true,
			}).
			Create(rows[start:end]).Error
		if err != nil {
			return fmt.Errorf("insert batch starting at %d: %w", start, err)
		}
	}
	return nil
}

// Count returns how many rows the results table holds.
func (r *ResultRepository) Count() (int64, error) {
	var count int64
	if err := r.db.db.Table(r.table).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}
