package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"kabunotify/internal/model"
	"kabunotify/internal/notifier"
	"kabunotify/internal/schedule"
)

// FetchFailedNotice is sent instead of a report when no quote could be fetched.
const FetchFailedNotice = "⚠️ failed to fetch stock prices."

// Store is the part of the configuration store the scheduler reads.
type Store interface {
	AllSchedules(ctx context.Context) ([]model.Schedule, error)
	TrackedTickers(ctx context.Context, channelID string) ([]model.Stock, error)
}

// QuoteFetcher fetches quotes; failed tickers are absent from the result.
type QuoteFetcher interface {
	GetQuotes(ctx context.Context, tickers []string) map[string]model.Quote
}

// Composer renders a report from quotes.
type Composer interface {
	Compose(ctx context.Context, quotes map[string]model.Quote, tickers []string, title string) notifier.Message
}

// Sender delivers a message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, msg notifier.Message) error
}

// Options tunes a Scheduler.
type Options struct {
	Location *time.Location
	// AllowOverlap lets a slow firing overlap the next firing of the same trigger.
	AllowOverlap bool
}

type entry struct {
	trigger model.Trigger
	id      cron.EntryID
}

// TriggerInfo is a snapshot of one live trigger.
type TriggerInfo struct {
	ChannelID   string    `json:"channel_id"`
	Expression  string    `json:"expression"`
	Description string    `json:"description"`
	Next        time.Time `json:"next"`
}

// Scheduler owns the live trigger registry: at most one cron entry per
// distinct (channel, expression) pair.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]entry
	wrap    cron.JobWrapper

	ctx      context.Context
	store    Store
	quotes   QuoteFetcher
	composer Composer
	sender   Sender
	alerter  notifier.Alerter
	loc      *time.Location
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler. Firings run with ctx.
func NewScheduler(ctx context.Context, store Store, quotes QuoteFetcher, composer Composer, sender Sender, alerter notifier.Alerter, opts Options, log zerolog.Logger) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if alerter == nil {
		alerter = notifier.NoopAlerter{}
	}
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}

	wrappers := []cron.JobWrapper{cron.Recover(cl)}
	if !opts.AllowOverlap {
		wrappers = append(wrappers, cron.SkipIfStillRunning(cl))
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(cl)),
		entries:  make(map[string]entry),
		wrap:     func(j cron.Job) cron.Job { return cron.NewChain(wrappers...).Then(j) },
		ctx:      ctx,
		store:    store,
		quotes:   quotes,
		composer: composer,
		sender:   sender,
		alerter:  alerter,
		loc:      loc,
		log:      log,
	}
}

// RegisterAll rebuilds the registry from the store. It is serialized with
// itself and ClearAll. When the store cannot be read the live triggers are kept.
func (s *Scheduler) RegisterAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.store.AllSchedules(ctx)
	if err != nil {
		return len(s.entries), fmt.Errorf("load schedules: %w", err)
	}

	s.clearLocked()
	for _, row := range rows {
		t := model.Trigger{ChannelID: row.ChannelID, Expression: row.Expression}
		key := t.Key()
		if _, dup := s.entries[key]; dup {
			continue
		}
		id, err := s.cron.AddJob(t.Expression, s.wrap(cron.FuncJob(func() { s.fire(t) })))
		if err != nil {
			s.log.Warn().Err(err).Int64("schedule_id", row.ID).Str("channel_id", t.ChannelID).
				Str("expression", t.Expression).Msg("invalid schedule skipped")
			continue
		}
		s.entries[key] = entry{trigger: t, id: id}
	}

	s.log.Info().Int("rows", len(rows)).Int("triggers", len(s.entries)).Msg("triggers registered")
	return len(s.entries), nil
}

// ClearAll removes every live trigger. In-flight firings run to completion.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Scheduler) clearLocked() {
	for key, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, key)
	}
}

// Len returns the number of live triggers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Triggers returns the live triggers ordered by channel then expression.
func (s *Scheduler) Triggers() []TriggerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().In(s.loc)
	out := make([]TriggerInfo, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.cron.Entry(e.id)
		next := ce.Next
		if next.IsZero() && ce.Schedule != nil {
			next = ce.Schedule.Next(now)
		}
		out = append(out, TriggerInfo{
			ChannelID:   e.trigger.ChannelID,
			Expression:  e.trigger.Expression,
			Description: schedule.Describe(e.trigger.Expression),
			Next:        next,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChannelID != out[j].ChannelID {
			return out[i].ChannelID < out[j].ChannelID
		}
		return out[i].Expression < out[j].Expression
	})
	return out
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Str("timezone", s.loc.String()).Msg("scheduler started")
}

// Stop stops firing new jobs and waits for in-flight firings or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with firings in flight")
		return ctx.Err()
	}
}

// BuildNotification composes the report for channelID. ok is false when the
// channel tracks no tickers.
func (s *Scheduler) BuildNotification(ctx context.Context, channelID, title string) (msg notifier.Message, ok bool, err error) {
	stocks, err := s.store.TrackedTickers(ctx, channelID)
	if err != nil {
		return notifier.Message{}, false, fmt.Errorf("load tickers for %s: %w", channelID, err)
	}
	if len(stocks) == 0 {
		return notifier.Message{}, false, nil
	}

	tickers := make([]string, len(stocks))
	for i, st := range stocks {
		tickers[i] = st.Ticker
	}

	quotes := s.quotes.GetQuotes(ctx, tickers)
	if len(quotes) == 0 {
		s.log.Warn().Str("channel_id", channelID).Strs("tickers", tickers).Msg("all quotes failed")
		s.alert(ctx, fmt.Sprintf("all %d quotes failed for channel %s", len(tickers), channelID))
		return notifier.Message{Content: FetchFailedNotice}, true, nil
	}
	return s.composer.Compose(ctx, quotes, tickers, title), true, nil
}

// SendNotification composes and delivers the report for channelID. A channel
// without tickers is a no-op.
func (s *Scheduler) SendNotification(ctx context.Context, channelID string) error {
	msg, ok, err := s.BuildNotification(ctx, channelID, "")
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Str("channel_id", channelID).Msg("no tickers, nothing to send")
		return nil
	}
	if err := s.sender.Send(ctx, channelID, msg); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

func (s *Scheduler) fire(t model.Trigger) {
	log := s.log.With().
		Str("run_id", uuid.NewString()).
		Str("channel_id", t.ChannelID).
		Str("schedule", schedule.Describe(t.Expression)).
		Logger()
	start := time.Now()
	log.Info().Msg("firing")

	if err := s.SendNotification(s.ctx, t.ChannelID); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("notification failed")
		s.alert(s.ctx, fmt.Sprintf("notification for channel %s (%s) failed: %v", t.ChannelID, t.Expression, err))
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("notification done")
}

func (s *Scheduler) alert(ctx context.Context, text string) {
	if err := s.alerter.Alert(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("ops alert failed")
	}
}
