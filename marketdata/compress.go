package marketdata

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Point is one retained entry of a compressed series.
type Point struct {
	TS    int64
	Price float64
}

// Series is a sparse timestamp-to-price mapping with adjacent duplicate
// prices removed. Points are kept in the order distinct prices appeared,
// timestamps non-decreasing.
type Series struct {
	Points []Point
}

// Compress collapses a day's raw ticks into price-change events.
//
// The first tick is always retained. A later tick is retained only when its
// price differs from the most recently retained price and its timestamp has
// not gone backwards. Replaying the result as a step function reproduces the
// raw price wherever the raw series was price-stable.
func Compress(ticks []Tick) Series {
	var s Series
	for _, tick := range ticks {
		if len(s.Points) == 0 {
			s.Points = append(s.Points, Point{TS: tick.TimestampUTC, Price: tick.Underlying})
			continue
		}
		last := s.Points[len(s.Points)-1]
		if tick.Underlying != last.Price && tick.TimestampUTC >= last.TS {
			s.Points = append(s.Points, Point{TS: tick.TimestampUTC, Price: tick.Underlying})
		}
	}
	return s
}

// Len returns the number of retained points.
func (s Series) Len() int {
	return len(s.Points)
}

// LastTS returns the timestamp of the final retained point, the engine's
// end-of-day marker. Zero for an empty series.
func (s Series) LastTS() int64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].TS
}

// PriceAt replays the series as a step function: the most recent retained
// price at or before ts. The bool is false before the first point.
func (s Series) PriceAt(ts int64) (float64, bool) {
	price, found := 0.0, false
	for _, p := range s.Points {
		if p.TS > ts {
			break
		}
		price, found = p.Price, true
	}
	return price, found
}

// MarshalJSON encodes the series as a JSON object keyed by the timestamp in
// decimal. Same-second price changes collapse to the last one, matching the
// overwrite semantics of a plain map.
func (s Series) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, len(s.Points))
	for _, p := range s.Points {
		m[strconv.FormatInt(p.TS, 10)] = p.Price
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the object form back into timestamp order.
func (s *Series) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	points := make([]Point, 0, len(m))
	for k, v := range m {
		ts, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return err
		}
		points = append(points, Point{TS: ts, Price: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TS < points[j].TS })
	s.Points = points
	return nil
}
