// Package app wires configuration into the running components shared by the
// webhook server and the writer CLI.
package app

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tashasho/social-media-posting-automator/internal/config"
	"github.com/tashasho/social-media-posting-automator/internal/critic"
	"github.com/tashasho/social-media-posting-automator/internal/dispatcher"
	"github.com/tashasho/social-media-posting-automator/internal/llm"
	"github.com/tashasho/social-media-posting-automator/internal/metrics"
	"github.com/tashasho/social-media-posting-automator/internal/publisher"
	"github.com/tashasho/social-media-posting-automator/internal/repository"
	"github.com/tashasho/social-media-posting-automator/internal/slackbot"
	"github.com/tashasho/social-media-posting-automator/internal/sources"
	"github.com/tashasho/social-media-posting-automator/internal/writer"
)

const slackTimeout = 15 * time.Second

// NewLogger builds the zap logger described by the log section
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// App holds the components every entry point needs
type App struct {
	Config     *config.Config
	Store      *repository.FileDraftStore
	Audit      *repository.AuditRepository
	Metrics    *metrics.Metrics
	Slack      *slackbot.Client
	Publisher  *publisher.Publisher
	Dispatcher *dispatcher.Dispatcher

	db     *sqlx.DB
	logger *zap.Logger
}

// New builds the draft store, audit trail, Slack client, publisher and dispatcher
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.NewMetrics(),
		logger:  logger,
	}

	store, err := repository.NewFileDraftStore(cfg.Drafts.PendingDir, cfg.Drafts.ApprovedDir, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if cfg.Audit.Enabled {
		if cfg.Audit.Driver == "sqlite" {
			if err := os.MkdirAll(filepath.Dir(cfg.Audit.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create audit directory: %w", err)
			}
		}
		db, err := repository.OpenDB(cfg.Audit.Driver, cfg.Audit.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Audit = repository.NewAuditRepository(db, cfg.Audit.Driver, logger)
	}

	slackOpts := []slackbot.ClientOption{
		slackbot.WithHTTPClient(&http.Client{Timeout: slackTimeout}),
	}
	if cfg.Slack.APIURL != "" {
		slackOpts = append(slackOpts, slackbot.WithAPIURL(cfg.Slack.APIURL))
	}
	a.Slack = slackbot.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID, logger, slackOpts...)

	a.Publisher = publisher.New(a.platforms(), cfg.Publisher.Skip, cfg.Publisher.Timeout, a.Metrics, logger)
	logger.Info("Publisher ready", zap.Strings("platforms", a.Publisher.Platforms()))

	opts := []dispatcher.Option{dispatcher.WithMetrics(a.Metrics)}
	if a.Audit != nil {
		opts = append(opts, dispatcher.WithAudit(a.Audit))
	}
	a.Dispatcher = dispatcher.New(store, a.Publisher, a.Slack, logger, opts...)

	return a, nil
}

// platforms returns the publication targets that have credentials
func (a *App) platforms() []publisher.Platform {
	pc := a.Config.Publisher
	var platforms []publisher.Platform

	if pc.Twitter.BearerToken != "" {
		platforms = append(platforms, publisher.NewTwitter(pc.Twitter.BearerToken, pc.Twitter.BaseURL, a.logger))
	}
	if pc.LinkedIn.AccessToken != "" {
		platforms = append(platforms, publisher.NewLinkedIn(pc.LinkedIn.AccessToken, pc.LinkedIn.OrgID, pc.LinkedIn.BaseURL, a.logger))
	}
	if pc.Telegram.BotToken != "" {
		tg, err := publisher.NewTelegram(pc.Telegram.BotToken, pc.Telegram.Channel, a.logger)
		if err != nil {
			a.logger.Warn("Failed to initialize Telegram publisher, continuing without it", zap.Error(err))
		} else {
			platforms = append(platforms, tg)
		}
	}

	if len(platforms) == 0 {
		a.logger.Warn("No publication platforms configured")
	}
	return platforms
}

// NewLoop builds the generation loop with separate generator and critic providers
func (a *App) NewLoop() (*writer.Loop, func(), error) {
	cfg := a.Config

	generator, err := llm.NewMultiProviderClient(llm.MultiProviderConfig{
		Providers:   cfg.Generator.Providers,
		MaxFailures: cfg.MaxFailuresBeforeSwitch,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	criticProvider, err := llm.NewMultiProviderClient(llm.MultiProviderConfig{
		Providers:   cfg.Critic.Providers,
		MaxFailures: cfg.MaxFailuresBeforeSwitch,
	}, a.logger)
	if err != nil {
		generator.Close()
		return nil, nil, fmt.Errorf("failed to initialize critic: %w", err)
	}

	criticOpts := []critic.Option{critic.WithTimeout(cfg.Critic.Timeout)}
	if cfg.Critic.PolicyPath != "" {
		policy, err := os.ReadFile(cfg.Critic.PolicyPath)
		if err != nil {
			generator.Close()
			criticProvider.Close()
			return nil, nil, fmt.Errorf("failed to read critic policy: %w", err)
		}
		criticOpts = append(criticOpts, critic.WithPolicy(string(policy)))
	}

	loopCfg := cfg.Writer.Config
	loopCfg.Model = llm.ModelName(generator)

	opts := []writer.Option{
		writer.WithNotifier(a.Slack),
		writer.WithMetrics(a.Metrics),
	}
	if a.Audit != nil {
		opts = append(opts, writer.WithAudit(a.Audit))
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	loop := writer.NewLoop(loopCfg,
		generator,
		critic.New(criticProvider, a.logger, criticOpts...),
		sources.NewFileNewsSource(cfg.Writer.NewsPath, a.logger),
		sources.NewFileExampleSource(cfg.Writer.ExamplesPath, rng, a.logger),
		a.Store,
		a.logger,
		opts...)

	cleanup := func() {
		generator.Close()
		criticProvider.Close()
	}
	return loop, cleanup, nil
}

// Close releases the audit database
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close audit database", zap.Error(err))
		}
	}
}
