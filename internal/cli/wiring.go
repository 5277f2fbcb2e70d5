package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"classquiz/internal/app"
	"classquiz/internal/bank"
	"classquiz/internal/config"
	"classquiz/internal/domain"
	"classquiz/internal/infra/csvlog"
	"classquiz/internal/infra/memory"
	"classquiz/internal/infra/postgres"
	redisstore "classquiz/internal/infra/redis"
	"classquiz/internal/infra/sqlite"
	"classquiz/internal/logging"
)

// attemptGrace keeps Redis attempts around a little past their deadline so a
// late answer still finds the attempt and force-submits it.
const attemptGrace = time.Minute

// env is everything a command needs, built from one config file.
type env struct {
	cfg     config.Config
	logger  *logrus.Logger
	service *app.ExamService
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func loadConfig(configPath string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil && !config.IsMissing(err) {
		return cfg, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logger.WithField("path", configPath).Warn("config file not found, using defaults")
	}
	return cfg, logger, nil
}

func setup(ctx context.Context, configPath string) (*env, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.closers = append(e.closers, func() { _ = redisClient.Close() })
	}

	loader := bank.NewFileLoader(cfg.Bank.Path)
	bankTTL := config.TTLDuration(cfg.Bank.CacheTTL, 10*time.Minute)
	var bankRepo app.BankRepository
	if redisClient != nil {
		bankRepo = redisstore.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		bankRepo = memory.NewBankRepository(loader, bankTTL)
	}

	duration := config.TTLDuration(cfg.Exam.Duration, 30*time.Minute)
	var attempts app.AttemptRepository
	if redisClient != nil {
		attempts = redisstore.NewAttemptStore(redisClient, config.TTLDuration(cfg.Redis.TTL, duration+attemptGrace))
	} else {
		attempts = memory.NewAttemptStore()
	}

	// A malformed bank stops every command before anything is graded.
	b, err := bankRepo.GetBank(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"path":        cfg.Bank.Path,
		"questions":   len(b.Questions),
		"fingerprint": b.Fingerprint,
	}).Info("question bank loaded")

	results, err := openResultLog(ctx, e, b)
	if err != nil {
		e.Close()
		return nil, err
	}
	logger.WithField("driver", cfg.Results.Driver).Debug("result log opened")

	e.service = app.NewExamService(attempts, bankRepo, results, duration, logger)
	return e, nil
}

func openResultLog(ctx context.Context, e *env, b domain.Bank) (app.ResultLog, error) {
	cfg := e.cfg
	driver := strings.ToLower(cfg.Results.Driver)
	switch driver {
	case "", "csv":
		ids := make([]int, 0, len(b.Questions))
		for _, q := range b.Questions {
			ids = append(ids, q.ID)
		}
		log := csvlog.Open(cfg.Results.Path, ids)
		e.closers = append(e.closers, func() { _ = log.Close() })
		return log, nil
	case "sqlite":
		path := cfg.Results.Path
		if filepath.Ext(path) == ".csv" {
			path = strings.TrimSuffix(path, ".csv") + ".db"
		}
		log, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite result log: %w", err)
		}
		e.closers = append(e.closers, func() { _ = log.Close() })
		return log, nil
	case "postgres":
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres url not configured")
		}
		if _, err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, pool.Close)
		return postgres.NewResultLog(pool), nil
	case "memory":
		return memory.NewResultLog(), nil
	default:
		return nil, fmt.Errorf("unknown results driver %q", cfg.Results.Driver)
	}
}
