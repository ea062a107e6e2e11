package model

// Stock is a ticker tracked by at least one channel.
type Stock struct {
	ID     int64
	Ticker string
	Name   string // empty when the upstream API returned no name
}

// Label returns the stock name, falling back to the display ticker.
func (s Stock) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return DisplayTicker(s.Ticker)
}

// Schedule is one persisted trigger row.
type Schedule struct {
	ID         int64
	ChannelID  string
	Expression string
}

// Trigger identifies a live recurring notification obligation.
type Trigger struct {
	ChannelID  string
	Expression string
}

// Key is the deduplication key of the trigger registry.
func (t Trigger) Key() string {
	return t.ChannelID + ":" + t.Expression
}

// ChannelOverview is the per-channel configuration shown by the list command.
type ChannelOverview struct {
	ChannelID string
	GuildID   string
	Stocks    []Stock
	Schedules []Schedule
}
