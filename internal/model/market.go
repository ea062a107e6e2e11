package model

import "time"

// Quote is a point-in-time price snapshot for a ticker.
type Quote struct {
	Ticker        string
	Name          string
	Price         float64
	PreviousClose float64
	Change        float64
	ChangePercent float64 // 0 when PreviousClose is 0
	Currency      string
}

// HistoryPoint is one daily close sample.
type HistoryPoint struct {
	Date  time.Time
	Close float64
}
