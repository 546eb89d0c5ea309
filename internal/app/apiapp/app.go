package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/config"
	"github.com/civicstack/grievance-backend/internal/infra/httpclient"
	s3infra "github.com/civicstack/grievance-backend/internal/infra/s3"
	"github.com/civicstack/grievance-backend/internal/jobs/cleanup"
	pgrepo "github.com/civicstack/grievance-backend/internal/repo/postgres"
	redrepo "github.com/civicstack/grievance-backend/internal/repo/redis"
	authsvc "github.com/civicstack/grievance-backend/internal/services/auth"
	classifysvc "github.com/civicstack/grievance-backend/internal/services/classify"
	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	duplicatessvc "github.com/civicstack/grievance-backend/internal/services/duplicates"
	fraudgatesvc "github.com/civicstack/grievance-backend/internal/services/fraudgate"
	mediasvc "github.com/civicstack/grievance-backend/internal/services/media"
	ratesvc "github.com/civicstack/grievance-backend/internal/services/rate"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
	purgeJob   *cleanup.Job
	purgeStop  chan struct{}
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	complaintRepo := pgrepo.NewComplaintRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	standingRepo := pgrepo.NewStandingRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	classifier := classifysvc.NewClient(cfg.Classifier.BaseURL, httpclient.New(cfg.Classifier.Timeout), log)
	detector := duplicatessvc.NewDetector(cfg.Policy.DuplicateSimilarity, cfg.Policy.DuplicateRadiusM)
	gate := fraudgatesvc.NewGate(standingRepo, cfg.Policy.PenaltyAmount)
	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Policy.SubmissionsPerMinute, cfg.Policy.SubmissionsPerHour)

	complaintService := complaintssvc.NewService(complaintssvc.Dependencies{
		Pool:       pool,
		Complaints: complaintRepo,
		Users:      userRepo,
		Standings:  standingRepo,
		Classifier: classifier,
		Detector:   detector,
		Gate:       gate,
		Limiter:    rateLimiter,
		Logger:     log,
	}, complaintssvc.Config{
		MaxReopens:        cfg.Policy.MaxReopens,
		DuplicateLookback: cfg.Policy.DuplicateLookback,
	})

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	mediaStorage := mediasvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	mediaService := mediasvc.NewService(mediaStorage)
	purgeJob := cleanup.New(complaintRepo, mediaStorage, cfg.Policy.DeletedRetention, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		ComplaintService: complaintService,
		MediaService:     mediaService,
		JWTManager:       jwtManager,
		Logger:           log,
		Config:           cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
		purgeJob:   purgeJob,
		purgeStop:  make(chan struct{}),
	}, nil
}

func (a *App) Run() error {
	go a.runPurgeLoop()

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) runPurgeLoop() {
	if a.postgres == nil {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.purgeStop:
			return
		case <-ticker.C:
			if err := a.purgeJob.Run(context.Background()); err != nil {
				a.logger.Error("retention purge failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	close(a.purgeStop)

	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
