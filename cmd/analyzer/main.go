// Command analyzer runs the market analysis core: market data feed,
// per-instrument pipelines, alert dispatch, the HTTP/WebSocket gateway and
// the metrics server.
package main

import (
	"context"
	"database/sql"
	"io"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tibcore/config"
	"tibcore/internal/alert"
	"tibcore/internal/gateway"
	"tibcore/internal/indicator"
	"tibcore/internal/marketdata/feed"
	"tibcore/internal/metrics"
	"tibcore/internal/model"
	"tibcore/internal/notification"
	"tibcore/internal/pattern"
	redisstore "tibcore/internal/store/redis"
	sqlitestore "tibcore/internal/store/sqlite"
	"tibcore/internal/supervisor"
	"tibcore/internal/tickq"
	"tibcore/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info")
		bootLog.Fatal().Err(err).Msg("config load failed")
	}
	log := logging.New(cfg.App.LogLevel)
	log.Info().Str("app", cfg.App.Name).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	health := metrics.NewHealthStatus()

	// Rule persistence + alert stream sink share one redis connection.
	var ruleStore *redisstore.RuleStore
	if cfg.Redis.Enabled {
		ruleStore, err = redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error().Err(err).Msg("redis unavailable, rule persistence disabled")
		} else {
			defer ruleStore.Close()
		}
	}

	var journal *sqlitestore.Journal
	if cfg.SQLite.Enabled {
		journal, err = sqlitestore.New(sqlitestore.JournalConfig{DBPath: cfg.SQLite.DBPath}, logging.Component(log, "journal"))
		if err != nil {
			log.Error().Err(err).Msg("sqlite unavailable, alert journal disabled")
		} else {
			defer journal.Close()
		}
	}

	sinks := buildSinks(cfg, ruleStore, log)
	dispatcher := notification.NewDispatcher(sinks, notification.DispatcherConfig{
		QueueSize:   cfg.Alert.DispatchQueue,
		Workers:     cfg.Alert.DispatchWorkers,
		MaxAttempts: cfg.Alert.MaxAttempts,
		BaseBackoff: cfg.Alert.BaseBackoff,
		MaxBackoff:  cfg.Alert.MaxBackoff,
	}, logging.Component(log, "dispatch"))
	dispatcher.OnDelivered = func(sink string) { m.AlertsDelivered.WithLabelValues(sink).Inc() }
	dispatcher.OnFailed = func(sink string) { m.AlertsFailed.WithLabelValues(sink).Inc() }
	dispatcher.OnLatency = func(sink string, elapsed time.Duration) {
		m.DispatchLatency.WithLabelValues(sink).Observe(elapsed.Seconds())
	}
	dispatcher.OnQueueDrop = func() { m.DispatchDropped.Inc() }
	dispatcher.OnBreakerState = func(sink string, state notification.State) {
		m.SinkBreakerState.WithLabelValues(sink).Set(float64(state))
	}

	hub := gateway.NewHub(logging.Component(log, "hub"))
	hub.OnClientCount = func(n int) { m.WSClients.Set(float64(n)) }

	// Alert events fan out to the dispatcher, the journal and the hub.
	alertJournalCh := make(chan model.AlertEvent, 1024)
	alertHubCh := make(chan model.AlertEvent, 1024)

	sup, err := supervisor.New(supervisor.Config{
		Analysis: supervisor.AnalysisConfig{
			Timeframes:  cfg.Analysis.Timeframes,
			Grace:       cfg.Analysis.Grace,
			HistorySize: cfg.Analysis.HistorySize,
			Indicators:  defaultIndicators(),
			Patterns:    pattern.DefaultConfigs(),
		},
		QueueSize:       cfg.Queue.Size,
		DropPolicy:      tickq.ParsePolicy(cfg.Queue.DropPolicy),
		TickMaxAge:      cfg.Analysis.TickMaxAge,
		DefaultCooldown: cfg.Alert.DefaultCooldown,
		IdleTimeout:     cfg.Alert.IdleTimeout,
	}, supervisor.Hooks{
		OnTickAccepted: func(inst string) { m.TicksTotal.WithLabelValues(inst).Inc() },
		OnTickRejected: func(reason string) { m.TicksRejected.WithLabelValues(reason).Inc() },
		OnTickDropped:  func(inst string) { m.TicksDropped.WithLabelValues(inst).Inc() },
		OnTickLate:     func(inst string) { m.LateTicks.WithLabelValues(inst).Inc() },
		OnCandleClosed: func(tf time.Duration) { m.CandlesClosed.WithLabelValues(tf.String()).Inc() },
		OnPattern:      func(id string) { m.PatternMatches.WithLabelValues(id).Inc() },
		OnSuppressed:   func(ruleID string) { m.AlertsSuppressed.WithLabelValues(ruleID).Inc() },
		OnPipelines:    func(n int) { m.PipelineCount.Set(float64(n)) },
		OnAlert: func(ev model.AlertEvent) {
			m.AlertsFired.Inc()
			dispatcher.Enqueue(ev)
			select {
			case alertJournalCh <- ev:
			default:
			}
			select {
			case alertHubCh <- ev:
			default:
			}
		},
	}, logging.Component(log, "supervisor"))
	if err != nil {
		log.Fatal().Err(err).Msg("supervisor init failed")
	}

	restoreRules(ctx, sup, ruleStore, log)

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { sup.Run(ctx) })
	run(func() { dispatcher.Run(ctx) })
	run(func() { hub.Run(ctx, alertHubCh, dispatcher.Status()) })
	if journal != nil {
		run(func() { journal.Run(ctx, alertJournalCh, dispatcher.Status()) })
	}
	run(func() { sampleSaturation(ctx, m, dispatcher, alertJournalCh, alertHubCh) })

	// Observability surface.
	metricsSrv := metrics.NewServer(cfg.App.MetricsAddr, health, logging.Component(log, "metrics"))
	metricsSrv.Start()
	var rdb *goredis.Client
	if ruleStore != nil {
		rdb = ruleStore.Client()
	}
	var journalDB *sql.DB
	if journal != nil {
		journalDB = journal.DB()
	}
	if rdb != nil || journalDB != nil {
		health.StartLivenessChecker(ctx, rdb, journalDB, 15*time.Second)
	}

	// HTTP surface.
	var saver gateway.RuleSaver
	if ruleStore != nil {
		saver = ruleStore
	}
	var alertLog gateway.AlertLog
	if journal != nil {
		alertLog = journal
	}
	api := gateway.NewAPI(sup, hub, saver, alertLog, logging.Component(log, "api"))
	api.Start(cfg.App.APIAddr)

	// Market data feed.
	src, err := buildFeed(cfg, m, health, log)
	if err != nil {
		log.Fatal().Err(err).Msg("feed init failed")
	}
	run(func() {
		err := src.Run(ctx, func(inst string, price, volume decimal.Decimal, ts time.Time) error {
			health.SetLastTickTime(time.Now())
			return sup.PushTick(inst, price, volume, ts)
		})
		if err != nil {
			log.Error().Err(err).Msg("feed stopped")
		}
	})

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	api.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	wg.Wait()

	// Sinks with buffered transports flush on Close.
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Str("sink", s.Name()).Msg("sink close failed")
			}
		}
	}

	log.Info().Msg("stopped")
}

// sampleSaturation periodically publishes fill percentages for the bounded
// channels between the pipeline and its consumers.
func sampleSaturation(ctx context.Context, m *metrics.Metrics, d *notification.Dispatcher, journalCh, hubCh chan model.AlertEvent) {
	pct := func(length, capacity int) float64 {
		if capacity == 0 {
			return 0
		}
		return float64(length) / float64(capacity) * 100
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ChannelSaturationPct.WithLabelValues("dispatch_queue").Set(pct(d.QueueDepth(), d.QueueCap()))
			m.ChannelSaturationPct.WithLabelValues("journal_feed").Set(pct(len(journalCh), cap(journalCh)))
			m.ChannelSaturationPct.WithLabelValues("hub_feed").Set(pct(len(hubCh), cap(hubCh)))
			for i, st := range d.StatusStats() {
				name := "status_sub_" + strconv.Itoa(i)
				m.ChannelSaturationPct.WithLabelValues(name).Set(pct(st.Len, st.Cap))
			}
		}
	}
}

// defaultIndicators is the analysis set every pipeline starts with; it can
// be replaced at runtime via PUT /api/v1/analysis.
func defaultIndicators() []indicator.Config {
	return []indicator.Config{
		{Type: "sma", Period: 20},
		{Type: "ema", Period: 20},
		{Type: "rsi", Period: 14},
		{Type: "macd", Period: 26, Params: map[string]float64{"fast": 12, "slow": 26, "signal": 9}},
		{Type: "bbands", Period: 20, Params: map[string]float64{"std_dev": 2}},
		{Type: "srlevels", Period: 20, Params: map[string]float64{"threshold": 0.02}},
	}
}

// restoreRules loads the persisted rule set, if any, so a restart resumes
// with the configuration last applied.
func restoreRules(ctx context.Context, sup *supervisor.Supervisor, store *redisstore.RuleStore, log zerolog.Logger) {
	if store == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	raw, ok, err := store.Load(loadCtx)
	if err != nil {
		log.Error().Err(err).Msg("rule restore failed")
		return
	}
	if !ok {
		return
	}
	var cfgs []alert.RuleConfig
	if err := json.Unmarshal(raw, &cfgs); err != nil {
		log.Error().Err(err).Msg("persisted rules unreadable")
		return
	}
	if err := sup.ApplyRules(cfgs); err != nil {
		log.Error().Err(err).Msg("persisted rules rejected")
		return
	}
	log.Info().Int("rules", len(cfgs)).Msg("rule set restored")
}

// buildSinks assembles the configured notification sinks. The log sink is
// always present so alerts are observable even with no outward channel.
func buildSinks(cfg *config.Config, ruleStore *redisstore.RuleStore, log zerolog.Logger) []notification.Sink {
	sinks := []notification.Sink{
		notification.NewLogSink(logging.Component(log, "alerts")),
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookSink(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		sinks = append(sinks, notification.NewTelegramSink(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Kafka.Enabled {
		sinks = append(sinks, notification.NewKafkaSink(notification.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}))
	}
	if ruleStore != nil {
		sinks = append(sinks, notification.NewRedisStreamSink(ruleStore.Client()))
	}
	return sinks
}

// buildFeed selects the configured market data source.
func buildFeed(cfg *config.Config, m *metrics.Metrics, health *metrics.HealthStatus, log zerolog.Logger) (feed.Feed, error) {
	switch cfg.Feed.Provider {
	case "sim":
		health.SetFeedConnected(true)
		return feed.NewSim(feed.SimConfig{
			Instruments: cfg.Feed.Instruments,
			StartPrice:  cfg.Feed.SimStartPrice,
			Volatility:  cfg.Feed.SimVolatility,
			Interval:    cfg.Feed.SimInterval,
		}, logging.Component(log, "sim")), nil
	default:
		f, err := feed.NewBinance(cfg.Feed.Instruments, logging.Component(log, "binance"))
		if err != nil {
			return nil, err
		}
		f.OnReconnect = m.WSReconnects.Inc
		f.OnConnected = health.SetFeedConnected
		return f, nil
	}
}
