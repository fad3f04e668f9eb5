package marketdata

import "time"

// Tick is a single intraday price observation for one ticker.
type Tick struct {
	TimestampUTC int64
	Underlying   float64
}

// Row is a raw warehouse row covering multiple tickers and days.
type Row struct {
	TimestampUTC int64
	Ticker       string
	Underlying   float64
}

// OpeningRange summarizes the first seconds of a trading day.
type OpeningRange struct {
	OpenPrice   float64 `json:"open_price"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	CountTrades int     `json:"count_trades"`
	TradingStart int64  `json:"trading_start"`
}

// DateOf formats an epoch timestamp as the trading date bucket key.
func DateOf(timestampUTC int64) string {
	return time.Unix(timestampUTC, 0).Format("2006-01-02")
}

// BuildOpeningRanges folds raw warehouse rows into per-ticker, per-date
// opening ranges in a single pass. Rows must arrive oldest to newest.
//
// window optionally restricts each bucket to rows within window seconds of
// the bucket's first sighting; rows beyond it are ignored. A window of zero
// disables the sub-window and every row inside the query bounds contributes.
//
// Days with no rows simply produce no bucket, which is how weekends and
// market holidays fall out of the sweep.
func BuildOpeningRanges(rows []Row, window int64) map[string]map[string]OpeningRange {
	organized := make(map[string]map[string]OpeningRange)
	firstSeen := make(map[string]map[string]int64)

	for _, row := range rows {
		date := DateOf(row.TimestampUTC)

		if _, ok := organized[row.Ticker]; !ok {
			organized[row.Ticker] = make(map[string]OpeningRange)
			firstSeen[row.Ticker] = make(map[string]int64)
		}

		bucket, ok := organized[row.Ticker][date]
		if !ok {
			organized[row.Ticker][date] = OpeningRange{
				OpenPrice:    row.Underlying,
				High:         row.Underlying,
				Low:          row.Underlying,
				CountTrades:  1,
				TradingStart: row.TimestampUTC,
			}
			firstSeen[row.Ticker][date] = row.TimestampUTC
			continue
		}

		if window > 0 && row.TimestampUTC > firstSeen[row.Ticker][date]+window {
			continue
		}

		bucket.CountTrades++
		if row.Underlying > bucket.High {
			bucket.High = row.Underlying
		}
		if row.Underlying < bucket.Low {
			bucket.Low = row.Underlying
		}
		if row.TimestampUTC > bucket.TradingStart {
			bucket.TradingStart = row.TimestampUTC
		}
		organized[row.Ticker][date] = bucket
	}

	return organized
}
