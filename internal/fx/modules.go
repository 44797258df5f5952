package fx

import (
	"github.com/rs/zerolog"

	"go.uber.org/fx"

	"rhythm-tracker/internal/api"
	"rhythm-tracker/internal/config"
	"rhythm-tracker/internal/converter"
	"rhythm-tracker/internal/database"
	"rhythm-tracker/internal/importer"
	"rhythm-tracker/internal/lock"
	"rhythm-tracker/internal/logger"
	"rhythm-tracker/internal/mutation"
	"rhythm-tracker/internal/orphan"
	"rhythm-tracker/internal/pb"
	"rhythm-tracker/internal/rating"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/server"
	"rhythm-tracker/internal/ugs"
	"rhythm-tracker/internal/webhook"
)

func provideRegistry(cfg *config.Config, charts *repository.ChartRepository, log zerolog.Logger) *converter.Registry {
	directManual := converter.BatchManual(converter.ImportTypeDirectManual, charts)

	// IR clients usually cannot report classes themselves; when a
	// remote profile service is configured, pull them from there.
	if cfg.ProfileAPIURL != "" {
		client := api.NewProfileClient(cfg.ProfileAPIURL, cfg.ProfileAPIKey, log)
		directManual.ClassResolver = client.Resolver()
	}

	return converter.NewRegistry(
		converter.BatchManual(converter.ImportTypeBatchManual, charts),
		directManual,
		converter.SDVXCSV(charts),
	)
}

func provideOverride(cfg *config.Config, log zerolog.Logger) *logger.Override {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	return logger.NewOverride(level, logger.RealClock())
}

func provideUGSService(
	cfg *config.Config,
	ugsRepo *repository.UGSRepository,
	pbRepo *repository.PBRepository,
	classRepo *repository.ClassAchievementRepository,
	emitter webhook.Emitter,
	log zerolog.Logger,
) *ugs.Service {
	return ugs.NewService(ugsRepo, pbRepo, classRepo, emitter, cfg.ProfileBestN, log)
}

func provideOrphanService(
	cfg *config.Config,
	orphanRepo *repository.OrphanRepository,
	charts *repository.ChartRepository,
	log zerolog.Logger,
) *orphan.Service {
	return orphan.NewService(orphanRepo, charts, cfg.OrphanThreshold, log)
}

func provideEmitter(cfg *config.Config, log zerolog.Logger) webhook.Emitter {
	if cfg.WebhookURL == "" {
		return webhook.NoopEmitter{}
	}
	return webhook.NewHTTPEmitter(cfg.WebhookURL, log)
}

func provideLocker() lock.UserLocker {
	return lock.NewMemory()
}

func provideImporter(
	cfg *config.Config,
	registry *converter.Registry,
	scores *repository.ScoreRepository,
	imports *repository.ImportRepository,
	engine *rating.Engine,
	pbSvc *pb.Service,
	stats *ugs.Service,
	orphans *orphan.Service,
	locker lock.UserLocker,
	log zerolog.Logger,
) *importer.Importer {
	return importer.New(importer.Params{
		Registry:  registry,
		Scores:    scores,
		Imports:   imports,
		Engine:    engine,
		PBs:       pbSvc,
		Stats:     stats,
		Orphans:   orphans,
		Locker:    locker,
		LockTries: cfg.LockRetries,
		LockDelay: cfg.LockBaseDelay,
		Logger:    log,
	})
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewChartRepository),
	fx.Provide(repository.NewScoreRepository),
	fx.Provide(repository.NewPBRepository),
	fx.Provide(repository.NewUGSRepository),
	fx.Provide(repository.NewClassAchievementRepository),
	fx.Provide(repository.NewOrphanRepository),
	fx.Provide(repository.NewImportRepository),
	fx.Provide(repository.NewBPIRepository),
	// pipeline
	fx.Provide(rating.NewEngine),
	fx.Provide(pb.NewService),
	fx.Provide(provideEmitter),
	fx.Provide(provideUGSService),
	fx.Provide(provideOrphanService),
	fx.Provide(provideRegistry),
	fx.Provide(provideOverride),
	fx.Provide(provideLocker),
	fx.Provide(provideImporter),
	fx.Provide(mutation.NewService),
	// server
	fx.Provide(server.New),
)
