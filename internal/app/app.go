package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"pathpatrol/config"
	"pathpatrol/internal/geocode"
	"pathpatrol/internal/mailer"
	"pathpatrol/internal/media"
	"pathpatrol/internal/messaging"
	"pathpatrol/internal/migrate"
	"pathpatrol/internal/repository"
	"pathpatrol/internal/service"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// ErrMissingJWTSecret is returned by New when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("jwt secret is not configured (set JWT_SECRET)")

// App holds the shared dependencies of the server and the admin CLI.
type App struct {
	Config           *config.Config
	DB               *sql.DB
	Redis            *redis.Client
	Complaints       *repository.ComplaintRepository
	Users            *repository.UserRepository
	Media            *media.Store
	Geocoder         *geocode.Client
	ComplaintService *service.ComplaintService
	AuthService      *service.AuthService

	rmq      *messaging.RabbitMQ
	consumer *messaging.StatusConsumer
	closed   bool
}

// New connects to the database, applies migrations and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.JWT.Secret == "" {
		return nil, ErrMissingJWTSecret
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("Connected to database")

	if err := migrate.NewManager(db).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a := &App{Config: cfg, DB: db}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	tagMatch, err := repository.ParseTagMatch(cfg.Complaints.TagMatch)
	if err != nil {
		return err
	}
	policy, err := repository.ParseResolutionPolicy(cfg.Complaints.ResolutionPolicy)
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Println("Connected to Redis")
	}

	backend, err := newMediaBackend(ctx, cfg.Media)
	if err != nil {
		return err
	}
	a.Media = media.NewStore(backend, cfg.Media.DataDir, media.WithMaxBytes(cfg.Media.MaxUploadBytes))

	var cache geocode.Cache = geocode.NewMemoryCache()
	if a.Redis != nil {
		cache = geocode.NewRedisCache(a.Redis, time.Duration(cfg.Redis.TTLMinutes)*time.Minute)
	}
	a.Geocoder = geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithTimeout(time.Duration(cfg.Geocode.TimeoutSeconds)*time.Second),
		geocode.WithRateLimit(cfg.Geocode.RequestsPerSecond),
		geocode.WithCache(cache),
	)

	a.Complaints = repository.NewComplaintRepository(a.DB,
		repository.WithTagMatch(tagMatch),
		repository.WithResolutionPolicy(policy),
	)
	a.Users = repository.NewUserRepository(a.DB)

	a.ComplaintService = service.NewComplaintService(a.Complaints, a.Media,
		service.WithGeocoder(a.Geocoder),
		service.WithTagMatching(tagMatch),
		service.WithDefaultTags(cfg.Complaints.DefaultTags),
	)
	a.AuthService = service.NewAuthService(a.Users, a.Complaints, cfg.JWT)
	return nil
}

func newMediaBackend(ctx context.Context, cfg config.MediaConfig) (media.Backend, error) {
	switch cfg.Backend {
	case "s3":
		client, err := media.NewS3Client(ctx, cfg.S3.Region, cfg.S3.Endpoint)
		if err != nil {
			return nil, err
		}
		log.Printf("Storing images in S3 bucket %s", cfg.S3.Bucket)
		return media.NewS3Backend(client, cfg.S3.Bucket), nil
	case "", "local":
		log.Printf("Storing images in %s", filepath.Join(cfg.DataDir, media.UploadPrefix))
		return media.NewDiskBackend(cfg.DataDir)
	}
	return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
}

// StartNotifications installs the status notifier. With RabbitMQ enabled,
// changes are published and mailed by a queue consumer; otherwise they are
// mailed directly. Without SMTP credentials no notifier is installed.
func (a *App) StartNotifications() error {
	smtp := a.Config.SMTP
	if !smtp.Enabled() {
		log.Println("SMTP not configured, status notifications disabled")
		return nil
	}
	notifier := mailer.NewNotifier(mailer.NewSMTPSender(mailer.SMTPConfig{
		Server:   smtp.Server,
		Port:     smtp.Port,
		From:     smtp.SenderEmail,
		Password: smtp.SenderPassword,
	}))

	if !a.Config.RabbitMQ.Enabled {
		a.ComplaintService.SetNotifier(notifier)
		log.Println("Status notifications sent directly over SMTP")
		return nil
	}

	rmq, err := messaging.NewRabbitMQ(
		a.Config.RabbitMQ.Host,
		a.Config.RabbitMQ.Port,
		a.Config.RabbitMQ.User,
		a.Config.RabbitMQ.Password,
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	a.rmq = rmq

	var deduper messaging.Deduper
	if a.Redis != nil {
		deduper = messaging.NewRedisDeduper(a.Redis)
	}
	a.consumer = messaging.NewStatusConsumer(rmq, notifier.NotifyStatusChange, deduper)
	a.consumer.Start()

	a.ComplaintService.SetNotifier(rmq)
	log.Println("Status notifications queued through RabbitMQ")
	return nil
}

// Migrations reports the applied schema versions in ascending order.
func (a *App) Migrations(ctx context.Context) ([]int, error) {
	return migrate.NewManager(a.DB).Status(ctx)
}

func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true

	if a.consumer != nil {
		a.consumer.Stop()
	}
	if a.rmq != nil {
		a.rmq.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
