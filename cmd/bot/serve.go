package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"kabunotify/internal/chart"
	"kabunotify/internal/collector"
	"kabunotify/internal/command"
	"kabunotify/internal/notifier"
	"kabunotify/internal/scheduler"
	"kabunotify/internal/status"
	"kabunotify/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			mock, _ := cmd.Flags().GetBool("mock-quotes")
			runOnStart, _ := cmd.Flags().GetBool("run-on-start")
			if os.Getenv("RUN_ON_START") == "true" {
				runOnStart = true
			}
			return a.serve(mock, runOnStart)
		},
	}
	cmd.Flags().Bool("mock-quotes", false, "serve generated prices instead of calling Yahoo Finance")
	cmd.Flags().Bool("run-on-start", false, "send every scheduled channel its report once at startup (env RUN_ON_START=true)")
	return cmd
}

func (a *app) serve(mockQuotes, runOnStart bool) error {
	cfg, log := a.cfg, a.log
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	log.Info().Str("timezone", loc.String()).Msg("kabu-notify starting")

	// Store
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath, cfg.Database.BusyTimeout, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Quote source
	var fetcher collector.ChartFetcher
	if mockQuotes {
		fetcher = &collector.MockFetcher{Price: 1000, PreviousClose: 990}
	} else {
		opts := []collector.YahooOption{
			collector.WithBaseURL(cfg.Yahoo.BaseURL),
			collector.WithUserAgent(cfg.Yahoo.UserAgent),
			collector.WithTimeout(cfg.Yahoo.Timeout),
			collector.WithRateLimit(cfg.Yahoo.RequestsPerSecond),
			collector.WithRetry(cfg.Yahoo.RetryMax, cfg.Yahoo.RetryDelay),
			collector.WithLogger(log.With().Str("component", "yahoo").Logger()),
		}
		if cfg.Proxy != "" {
			opts = append(opts, collector.WithProxy(cfg.Proxy))
		}
		fetcher = collector.NewYahooFetcher(opts...)
	}
	log.Info().Str("source", fetcher.Name()).Msg("quote source ready")

	col := collector.NewCollector(fetcher, log)
	col.Concurrency = cfg.Yahoo.Concurrency
	col.HistoryDays = cfg.Yahoo.HistoryDays

	composer := notifier.NewComposer(col, chart.NewPNGRenderer(loc), loc, log).WithHistoryDays(cfg.Yahoo.HistoryDays)

	// Ops alerts
	var alerter notifier.Alerter = notifier.NoopAlerter{}
	if cfg.Telegram.BotToken != "" {
		ta, err := notifier.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram alerts disabled")
		} else {
			alerter = ta
		}
	}

	// Discord
	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	// Firings outlive the signal context so shutdown can drain them.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	sched := scheduler.NewScheduler(runCtx, st, col, composer, notifier.NewDiscordSender(session), alerter,
		scheduler.Options{Location: loc, AllowOverlap: cfg.Scheduler.AllowOverlap}, log)

	handler := command.NewHandler(cfg.Discord.CommandPrefix, st, col, sched, sched, loc, log)
	router := notifier.NewInteractionRouter(handler.Handle,
		command.DeferredNames(command.Definitions(cfg.Discord.CommandPrefix)), 0, log)
	session.AddHandler(router.Handle)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord ready")
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer session.Close()

	n, err := sched.RegisterAll(runCtx)
	if err != nil {
		return fmt.Errorf("register triggers: %w", err)
	}
	sched.Start()
	log.Info().Int("triggers", n).Msg("scheduler running")

	var statusSrv *status.Server
	if cfg.Status.Addr != "" {
		statusSrv = status.NewServer(cfg.Status.Addr, status.NewRouter(sched, st, log), log)
		statusSrv.Start()
	}

	if runOnStart {
		go notifyAll(runCtx, sched, a)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("systemd notify")
	} else if ok {
		log.Debug().Msg("systemd notified ready")
	}
	log.Info().Msg("kabu-notify is running, press Ctrl+C to stop")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.StopTimeout)
	defer cancel()

	sched.ClearAll()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight notifications abandoned")
	}
	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("status server shutdown")
		}
	}
	log.Info().Msg("kabu-notify stopped")
	return nil
}

// notifyAll sends each scheduled channel its report once.
func notifyAll(ctx context.Context, sched *scheduler.Scheduler, a *app) {
	seen := map[string]bool{}
	for _, t := range sched.Triggers() {
		if seen[t.ChannelID] {
			continue
		}
		seen[t.ChannelID] = true
		if err := sched.SendNotification(ctx, t.ChannelID); err != nil {
			a.log.Error().Err(err).Str("channel_id", t.ChannelID).Msg("startup notification failed")
		}
	}
}
