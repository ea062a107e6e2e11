// Package store persists channel, stock and schedule configuration.
package store

import (
	"context"

	"kabunotify/internal/model"
)

// Store is the durable configuration of every channel. Multi-row mutations
// run in a single transaction.
type Store interface {
	EnsureChannel(ctx context.Context, channelID, guildID string) error
	UpsertStock(ctx context.Context, ticker, name string) (int64, error)
	AddChannelStock(ctx context.Context, channelID, guildID string, stockID int64, addedBy string) (bool, error)
	RemoveChannelStock(ctx context.Context, channelID, ticker string) (bool, error)
	TrackedTickers(ctx context.Context, channelID string) ([]model.Stock, error)

	AddSchedules(ctx context.Context, channelID, guildID string, exprs []string) ([]model.Schedule, error)
	SetSchedules(ctx context.Context, channelID, guildID string, exprs []string) error
	Schedules(ctx context.Context, channelID string) ([]model.Schedule, error)
	AllSchedules(ctx context.Context) ([]model.Schedule, error)
	DeleteSchedule(ctx context.Context, channelID string, id int64) (bool, error)

	GuildOverview(ctx context.Context, guildID string) ([]model.ChannelOverview, error)
	Close() error
}
