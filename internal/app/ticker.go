package app

import "time"

// TickerFactory creates a ticker firing every d. It returns the tick channel
// and a function that stops the ticker.
type TickerFactory func(d time.Duration) (<-chan time.Time, func())

// RealTicker is the TickerFactory backed by time.NewTicker
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(d)
	return ticker.C, ticker.Stop
}
