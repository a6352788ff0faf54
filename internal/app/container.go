package app

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/analysis"
	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/health"
	"github.com/ncecere/speech_analysis/backend/internal/limits"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
	"github.com/ncecere/speech_analysis/backend/internal/observability"
	"github.com/ncecere/speech_analysis/backend/internal/redisclient"
	"github.com/ncecere/speech_analysis/backend/internal/speech"
	"github.com/ncecere/speech_analysis/backend/internal/translator"
)

// Container aggregates runtime dependencies for handlers.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Redis         *redis.Client
	Speech        *speech.Client
	Translator    *translator.Client
	Analyzer      *analysis.Orchestrator
	RateLimiter   *limits.RateLimiter
	HealthMon     *health.Monitor
	Observability *observability.Provider
}

// NewContainer builds a dependency container. redisClient may be nil, in which case rate limiting
// is disabled.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger = logging.OrNop(logger)

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	speechClient := speech.New(cfg.Speech, logger.Named("speech"))
	translatorClient := translator.New(cfg.Translator, logger.Named("translator"))

	var opts []analysis.Option
	if obsProvider != nil {
		opts = append(opts, analysis.WithRecorder(obsProvider))
	}
	analyzer := analysis.New(speechClient, translatorClient, cfg.Audio, logger.Named("analysis"), opts...)

	var rateLimiter *limits.RateLimiter
	limitCfg := limits.FromConfig(cfg.RateLimits)
	if redisClient != nil && limitCfg.Enabled() {
		rateLimiter = limits.NewRateLimiter(redisClient, limitCfg)
	}

	monitor := health.NewMonitor(cfg.Health, logger.Named("health"))
	if cfg.Speech.Key != "" {
		monitor.Register("azure_speech", speechClient.Probe)
	}
	if cfg.Translator.Endpoint != "" {
		monitor.Register("azure_translator", translatorClient.Probe)
	}
	if redisClient != nil {
		monitor.Register("redis", func(ctx context.Context) error {
			return redisclient.Ping(ctx, redisClient)
		})
	}
	monitor.Start(ctx)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		Redis:         redisClient,
		Speech:        speechClient,
		Translator:    translatorClient,
		Analyzer:      analyzer,
		RateLimiter:   rateLimiter,
		HealthMon:     monitor,
		Observability: obsProvider,
	}, nil
}

// ClientKey derives the rate limit key for a caller address.
func ClientKey(remoteIP string) string {
	ip := strings.TrimSpace(remoteIP)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "unknown"
	}
	return "client:" + ip
}

// AcquireRateLimits admits one analysis of size bytes for the client and returns the release
// function. A nil limiter admits everything.
func (c *Container) AcquireRateLimits(ctx context.Context, remoteIP string, size int) (func(), error) {
	noop := func() {}
	if c == nil || c.RateLimiter == nil {
		return noop, nil
	}
	key := ClientKey(remoteIP)
	if err := c.RateLimiter.Allow(ctx, key); err != nil {
		return noop, err
	}
	release := func() { c.RateLimiter.Release(context.Background(), key) }
	if err := c.RateLimiter.AudioAllowance(ctx, key, size); err != nil {
		release()
		return noop, err
	}
	return release, nil
}
