package engine

import (
	"fmt"

	"openrange-backtest/marketdata"
)

// StrategyParams is one sweep point of the parameter grid. The JSON tags
// match the task kwargs emitted by the dispatcher.
type StrategyParams struct {
	StopDistance      float64 `json:"stop_distance"`
	StopCountLimit    int     `json:"stop_count_limit"`
	StopCooloffPeriod int     `json:"stop_cooloff_period"`
	LimitDistance     float64 `json:"limit_distance"`
}

// Validate rejects parameters outside the strategy's domain; every axis
// must be strictly positive.
func (p StrategyParams) Validate() error {
	if p.StopDistance <= 0 {
		return fmt.Errorf("stop_distance must be positive, got %v", p.StopDistance)
	}
	if p.StopCountLimit <= 0 {
		return fmt.Errorf("stop_count_limit must be positive, got %d", p.StopCountLimit)
	}
	if p.StopCooloffPeriod <= 0 {
		return fmt.Errorf("stop_cooloff_period must be positive, got %d", p.StopCooloffPeriod)
	}
	if p.LimitDistance <= 0 {
		return fmt.Errorf("limit_distance must be positive, got %v", p.LimitDistance)
	}
	return nil
}

// Direction of an executed trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Trade is immutable once closed.
type Trade struct {
	OpenPrice     float64
	OpenTS        int64
	ClosePrice    float64
	CloseTS       int64
	Direction     Direction
	Profit        float64
	HoldingPeriod int64
}

// DayResult collects everything one simulated day produced.
type DayResult struct {
	Trades               []Trade
	StopsTriggered       int
	TradesTriggered      int
	AverageHoldingPeriod float64
	NetProfit            float64
}

type side int

const (
	sideNone side = iota
	sideLong
	sideShort
)

// SimulateDay runs the opening-range breakout state machine over one day's
// compressed series.
//
// A breakout above rangeHigh opens a long, below rangeLow a short. A limit
// hit or the end-of-day tick closes the position and ends the day; a stop
// hit closes the position, starts the cooloff clock and counts toward the
// per-day risk cap. Reaching the risk cap ends the day. When both the limit
// and the stop would fire on the same tick, the limit wins.
func SimulateDay(params StrategyParams, rangeHigh, rangeLow float64, series marketdata.Series) DayResult {
	endOfDay := series.LastTS()

	var (
		active       side
		current      Trade
		stopPrice    float64
		limitPrice   float64
		stops        int
		cooloffUntil int64
		trades       []Trade
	)

	closeTrade := func(price float64, ts int64) {
		current.ClosePrice = price
		current.CloseTS = ts
		if current.Direction == Long {
			current.Profit = price - current.OpenPrice
		} else {
			current.Profit = current.OpenPrice - price
		}
		current.HoldingPeriod = ts - current.OpenTS
		trades = append(trades, current)
		active = sideNone
		stopPrice = 0
		limitPrice = 0
	}

loop:
	for _, p := range series.Points {
		// Risk cap: the day is over once the stop count limit is reached.
		if stops == params.StopCountLimit {
			break
		}

		// Cooloff after a stop-out suppresses new activity.
		if p.TS < cooloffUntil {
			continue
		}

		switch active {
		case sideNone:
			if p.Price > rangeHigh {
				current = Trade{OpenPrice: p.Price, OpenTS: p.TS, Direction: Long}
				stopPrice = p.Price - params.StopDistance
				limitPrice = p.Price + params.LimitDistance
				active = sideLong
			} else if p.Price < rangeLow {
				current = Trade{OpenPrice: p.Price, OpenTS: p.TS, Direction: Short}
				stopPrice = p.Price + params.StopDistance
				limitPrice = p.Price - params.LimitDistance
				active = sideShort
			}

		case sideLong:
			if p.Price >= limitPrice || p.TS == endOfDay {
				// One winning trade per day is sufficient.
				closeTrade(p.Price, p.TS)
				break loop
			} else if p.Price <= stopPrice {
				closeTrade(p.Price, p.TS)
				stops++
				cooloffUntil = p.TS + int64(params.StopCooloffPeriod)
			}

		case sideShort:
			if p.Price <= limitPrice || p.TS == endOfDay {
				closeTrade(p.Price, p.TS)
				break loop
			} else if p.Price >= stopPrice {
				closeTrade(p.Price, p.TS)
				stops++
				cooloffUntil = p.TS + int64(params.StopCooloffPeriod)
			}
		}
	}

	// A position opened on the day's final tick never saw another tick to
	// exit on; flatten it in place at its entry price.
	if active != sideNone {
		closeTrade(current.OpenPrice, current.OpenTS)
	}

	result := DayResult{
		Trades:          trades,
		StopsTriggered:  stops,
		TradesTriggered: len(trades),
	}
	var holdingSum int64
	for _, trade := range trades {
		result.NetProfit += trade.Profit
		holdingSum += trade.HoldingPeriod
	}
	if len(trades) > 0 {
		result.AverageHoldingPeriod = float64(holdingSum) / float64(len(trades))
	}
	return result
}
