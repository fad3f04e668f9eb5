package engine

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"strconv"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewBacktestID generates a 5-character alphanumeric identifier. The space
// is about 9e8 ids; collisions are tolerated because the durable store
// treats the id as a unique key with insert-ignore semantics.
func NewBacktestID() string {
	id := make([]byte, 5)
	for i := range id {
		id[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(id)
}

// BacktestResult is the full outcome of one sweep point.
type BacktestResult struct {
	BacktestID           string
	Params               StrategyParams
	ByDay                map[string]DayResult
	BacktestProfit       float64
	AverageHoldingPeriod float64
	WinRatePercent       float64
}

// Aggregate rolls per-day results up into a BacktestResult and assigns a
// fresh backtest id. Zero trades across all days is a valid outcome with
// zero profit, zero win rate and zero average holding period.
func Aggregate(params StrategyParams, byDay map[string]DayResult) BacktestResult {
	result := BacktestResult{
		BacktestID: NewBacktestID(),
		Params:     params,
		ByDay:      byDay,
	}

	var profit, holdingSum float64
	var wins int
	for _, day := range byDay {
		profit += day.NetProfit
		holdingSum += day.AverageHoldingPeriod
		if day.NetProfit > 0 {
			wins++
		}
	}

	result.BacktestProfit = math.Round(profit*100) / 100
	if len(byDay) > 0 {
		result.AverageHoldingPeriod = holdingSum / float64(len(byDay))
		result.WinRatePercent = math.Round(100 * float64(wins) / float64(len(byDay)))
	}
	return result
}

// TradeStats is the abbreviated wire form of a closed trade. The short keys
// are part of the cache contract and must be preserved bit for bit.
type TradeStats struct {
	OpenPrice     float64 `json:"top"`
	OpenTS        int64   `json:"to"`
	ClosePrice    float64 `json:"tcp"`
	CloseTS       int64   `json:"tc"`
	Profit        float64 `json:"p"`
	HoldingPeriod int64   `json:"hp"`
	Direction     string  `json:"d"`
}

// DayStats is the abbreviated wire form of a DayResult. Trades are keyed by
// their 1-based position ("1", "2", ...) alongside the day summary fields.
type DayStats struct {
	Trades               []TradeStats
	StopsTriggered       int
	TradesTriggered      int
	AverageHoldingPeriod float64
	NetProfit            float64
}

// MarshalJSON flattens the trades into the same object as the summary keys.
func (d DayStats) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(d.Trades)+4)
	m["st"] = d.StopsTriggered
	m["tt"] = d.TradesTriggered
	m["ahp"] = d.AverageHoldingPeriod
	m["snp"] = d.NetProfit
	for i, trade := range d.Trades {
		m[strconv.Itoa(i+1)] = trade
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the numeric trade keys back out of the object.
func (d *DayStats) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type indexed struct {
		pos   int
		trade TradeStats
	}
	var found []indexed

	for key, value := range raw {
		switch key {
		case "st":
			if err := json.Unmarshal(value, &d.StopsTriggered); err != nil {
				return err
			}
		case "tt":
			if err := json.Unmarshal(value, &d.TradesTriggered); err != nil {
				return err
			}
		case "ahp":
			if err := json.Unmarshal(value, &d.AverageHoldingPeriod); err != nil {
				return err
			}
		case "snp":
			if err := json.Unmarshal(value, &d.NetProfit); err != nil {
				return err
			}
		default:
			pos, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			var trade TradeStats
			if err := json.Unmarshal(value, &trade); err != nil {
				return err
			}
			found = append(found, indexed{pos: pos, trade: trade})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	d.Trades = make([]TradeStats, 0, len(found))
	for _, f := range found {
		d.Trades = append(d.Trades, f.trade)
	}
	return nil
}

// ResultPayload is the worker's result record as stored in the result
// backend. The reaper filters on the presence of net_profit.
type ResultPayload struct {
	BacktestID           string              `json:"backtest_id"`
	StopsTriggered       int                 `json:"stops_triggered"`
	TradesTriggered      int                 `json:"trades_triggered"`
	NetProfit            float64             `json:"net_profit"`
	AverageHoldingPeriod float64             `json:"average_holding_period"`
	WinRatePercent       float64             `json:"win_rate_percent"`
	TradeStats           map[string]DayStats `json:"trade_stats"`
}

// Payload converts a BacktestResult into its wire form.
func (r BacktestResult) Payload() ResultPayload {
	payload := ResultPayload{
		BacktestID:           r.BacktestID,
		NetProfit:            r.BacktestProfit,
		AverageHoldingPeriod: r.AverageHoldingPeriod,
		WinRatePercent:       r.WinRatePercent,
		TradeStats:           make(map[string]DayStats, len(r.ByDay)),
	}

	for date, day := range r.ByDay {
		stats := DayStats{
			StopsTriggered:       day.StopsTriggered,
			TradesTriggered:      day.TradesTriggered,
			AverageHoldingPeriod: day.AverageHoldingPeriod,
			NetProfit:            day.NetProfit,
		}
		for _, trade := range day.Trades {
			stats.Trades = append(stats.Trades, TradeStats{
				OpenPrice:     trade.OpenPrice,
				OpenTS:        trade.OpenTS,
				ClosePrice:    trade.ClosePrice,
				CloseTS:       trade.CloseTS,
				Profit:        trade.Profit,
				HoldingPeriod: trade.HoldingPeriod,
				Direction:     string(trade.Direction),
			})
		}
		payload.TradeStats[date] = stats
		payload.StopsTriggered += day.StopsTriggered
		payload.TradesTriggered += day.TradesTriggered
	}
	return payload
}
