// Package bootstrap builds the application object graph shared by the API
// server and the pipeline worker.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"prescreen-backend/internal/artifacts"
	"prescreen-backend/internal/calls"
	"prescreen-backend/internal/consent"
	"prescreen-backend/internal/directory"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/jobs"
	"prescreen-backend/internal/llm/anthropic"
	"prescreen-backend/internal/notify"
	"prescreen-backend/internal/pipeline"
	"prescreen-backend/internal/queue"
	"prescreen-backend/internal/recordings"
	"prescreen-backend/internal/reports"
	"prescreen-backend/internal/shared/config"
	"prescreen-backend/internal/shared/server"
	"prescreen-backend/internal/shared/storage/db"
	"prescreen-backend/internal/shared/storage/object"
	localstore "prescreen-backend/internal/shared/storage/object/local"
	s3store "prescreen-backend/internal/shared/storage/object/s3"
	"prescreen-backend/internal/stt"
	"prescreen-backend/internal/telephony"
	"prescreen-backend/internal/telephony/twilio"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	InterviewsRepo interviews.Repo
	AttemptsRepo   calls.Repo
	ConsentRepo    consent.Repo
	ArtifactsRepo  artifacts.Repo
	Directory      directory.Directory

	ConsentService  *consent.Service
	ArtifactService *artifacts.Service
	Notifier        notify.Notifier
	Orchestrator    *pipeline.Orchestrator

	InterviewHandler *interviews.Handler
	ConsentHandler   *consent.Handler
	WebhookHandler   *calls.WebhookHandler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		InterviewHandler: app.InterviewHandler,
		ConsentHandler:   app.ConsentHandler,
		WebhookHandler:   app.WebhookHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: PS_SQS_QUEUE_URL empty; using in-memory queue")
			return queue.NewMemoryClient(), nil
		}
		return nil, fmt.Errorf("PS_SQS_QUEUE_URL is required")
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.InterviewsRepo = &interviews.PGRepo{DB: app.DB}
		app.AttemptsRepo = &calls.PGRepo{DB: app.DB}
		app.ConsentRepo = &consent.PGRepo{DB: app.DB}
		app.ArtifactsRepo = &artifacts.PGRepo{DB: app.DB}
		app.Directory = &directory.PGDirectory{DB: app.DB}
	} else {
		app.InterviewsRepo = interviews.NewMemoryRepo()
		app.AttemptsRepo = calls.NewMemoryRepo()
		app.ConsentRepo = consent.NewMemoryRepo()
		app.ArtifactsRepo = artifacts.NewMemoryRepo()
		app.Directory = directory.NewMemoryDirectory()
	}

	app.ArtifactService = artifacts.NewService(app.ArtifactsRepo, app.Store)
	app.ConsentService = &consent.Service{
		Repo:      app.ConsentRepo,
		Directory: app.Directory,
		TTL:       cfg.ConsentTTL,
	}

	if strings.TrimSpace(cfg.NotifyWebhookURL) != "" {
		app.Notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
	} else {
		app.Notifier = notify.LogNotifier{}
	}

	var provider telephony.Provider = placeholderProvider{}
	var fetcher recordings.Fetcher = placeholderFetcher{}
	if strings.TrimSpace(cfg.TelephonyAccountSID) != "" {
		twilioClient, err := twilio.NewClient(cfg.TelephonyAccountSID, cfg.TelephonyAuthToken, cfg.TelephonyFromNumber, cfg.TelephonyBaseURL)
		if err != nil {
			return err
		}
		provider = twilioClient
		fetcher = twilioClient
	}

	var sttEngine jobs.Engine = placeholderEngine{name: "stt"}
	if strings.TrimSpace(cfg.STTBaseURL) != "" {
		client, err := stt.NewClient(cfg.STTBaseURL, cfg.STTAPIKey, cfg.STTModel)
		if err != nil {
			return err
		}
		sttEngine = client
	}

	var llmEngine jobs.Engine = placeholderEngine{name: "llm"}
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		client, err := anthropic.NewClient(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL)
		if err != nil {
			return err
		}
		llmEngine = client
	}

	app.Orchestrator = pipeline.New(pipeline.Options{
		Interviews: app.InterviewsRepo,
		Attempts:   app.AttemptsRepo,
		Consents:   app.ConsentService,
		Directory:  app.Directory,
		Artifacts:  app.ArtifactService,
		Queue:      app.Queue,
		Provider:   provider,
		Retriever:  recordings.NewRetriever(fetcher, app.ArtifactService),
		STT:        sttEngine,
		Analysis:   llmEngine,
		Compiler:   reports.NewCompiler(app.ArtifactService, app.Directory),
		Notifier:   app.Notifier,
		Config: pipeline.Config{
			ConsentBaseURL:        cfg.ConsentBaseURL,
			WebhookBaseURL:        cfg.WebhookBaseURL,
			MaxCallAttempts:       cfg.MaxCallAttempts,
			MinCallDuration:       cfg.MinCallDuration,
			MaxTranscribeAttempts: cfg.MaxTranscribeAttempts,
			MaxAnalyzeAttempts:    cfg.MaxAnalyzeAttempts,
			JobPollInterval:       cfg.JobPollInterval,
			JobSLA:                cfg.JobSLA,
			StageTimeout:          cfg.StageTimeout,
			RetryBackoffBase:      cfg.RetryBackoffBase,
		},
	})
	app.ConsentService.OnDecision = app.Orchestrator.OnConsentDecision

	app.InterviewHandler = interviews.NewHandler(app.Orchestrator)
	app.ConsentHandler = consent.NewHandler(app.ConsentService, app.Directory)
	app.WebhookHandler = calls.NewWebhookHandler(cfg.TelephonyAuthToken, cfg.WebhookBaseURL, app.Orchestrator)
	return nil
}

// placeholderProvider rejects calls until real telephony credentials are
// configured, keeping dev environments safe from accidental dialing.
type placeholderProvider struct{}

func (placeholderProvider) Place(ctx context.Context, req telephony.PlaceRequest) (string, error) {
	return "", errors.New("telephony provider not configured")
}

type placeholderFetcher struct{}

func (placeholderFetcher) FetchRecording(ctx context.Context, recordingURL string) (io.ReadCloser, string, error) {
	return nil, "", errors.New("telephony provider not configured")
}

type placeholderEngine struct{ name string }

func (p placeholderEngine) Submit(ctx context.Context, input []byte) (string, error) {
	return "", fmt.Errorf("%s engine not configured", p.name)
}

func (p placeholderEngine) Poll(ctx context.Context, handle string) (jobs.Result, error) {
	return jobs.Result{}, fmt.Errorf("%s engine not configured", p.name)
}
