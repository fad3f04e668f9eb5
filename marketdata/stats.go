package marketdata

import "math"

// DailyClose is one row of the warehouse's daily underlying table.
type DailyClose struct {
	Ticker     string
	Date       string
	ClosePrice float64
}

// Correlation computes the Pearson correlation between a ticker's daily
// closes and the benchmark's, inner-joined on the benchmark's dates. Dates
// present on only one side are ignored. Degenerate inputs (fewer than two
// matched dates, or a flat series) return 0.
func Correlation(rows []DailyClose, benchmark string) float64 {
	benchmarkCloses := make(map[string]float64)
	for _, row := range rows {
		if row.Ticker == benchmark {
			benchmarkCloses[row.Date] = row.ClosePrice
		}
	}

	var xs, ys []float64
	for _, row := range rows {
		if row.Ticker == benchmark {
			continue
		}
		if close, ok := benchmarkCloses[row.Date]; ok {
			xs = append(xs, row.ClosePrice)
			ys = append(ys, close)
		}
	}

	if len(xs) < 2 {
		return 0
	}

	meanX, meanY := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
