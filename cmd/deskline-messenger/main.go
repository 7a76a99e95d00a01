package main

import (
	"context"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	chatsrepo "github.com/deskline/deskline-messenger/internal/chats/repo"
	chatsservice "github.com/deskline/deskline-messenger/internal/chats/service"
	appConfig "github.com/deskline/deskline-messenger/internal/config"
	"github.com/deskline/deskline-messenger/internal/lib/logger/handlers/slogpretty"
	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
	"github.com/deskline/deskline-messenger/internal/messages"
	messagesrepo "github.com/deskline/deskline-messenger/internal/messages/repo"
	messagesservice "github.com/deskline/deskline-messenger/internal/messages/service"
	"github.com/deskline/deskline-messenger/internal/session"
	"github.com/deskline/deskline-messenger/internal/storage"
	"github.com/deskline/deskline-messenger/internal/transport/client"
	"github.com/deskline/deskline-messenger/internal/uploads"
	"github.com/deskline/deskline-messenger/internal/users"
	usersmemory "github.com/deskline/deskline-messenger/internal/users/memory"
	usersrepo "github.com/deskline/deskline-messenger/internal/users/repo"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found, skipping...")
	}

	cfg := appConfig.MustLoad()

	log := setupLogger(cfg.Env)
	log.Info("starting deskline-messenger", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Error("failed to migrate storage", sl.Err(err))
		os.Exit(1)
	}

	var usersRepo users.Repo
	if cfg.Storage.Driver == storage.DriverPostgres {
		usersRepo = usersrepo.New(db)
	} else {
		// The desktop embedding receives its roster from the host
		// application; this seed stands in for it.
		usersRepo = usersmemory.New(
			users.User{ID: 1, Name: "Roman Potapov"},
			users.User{ID: 2, Name: "Ivan Ivanov"},
		)
	}

	chatsRepo := chatsrepo.New(db)
	messagesRepo := messagesrepo.New(db)

	chatsService := chatsservice.New(chatsRepo, usersRepo, log)

	var signer messages.AttachmentURLSigner
	if cfg.Uploads.Bucket != "" {
		s, err := setupUploads(ctx, cfg)
		if err != nil {
			log.Error("failed to init uploads", sl.Err(err))
			os.Exit(1)
		}
		signer = s
	}

	transport := client.New(cfg.Session.BrokerAddress, cfg.Session.UserID, cfg.Session.EventQueue, log)

	messagesService := messagesservice.New(
		messagesRepo,
		chatsRepo,
		usersRepo,
		session.NewBrokerPublisher(transport),
		signer,
		log,
	)

	summaries, err := chatsService.GetChatsForUser(ctx, cfg.Session.UserID)
	if err != nil {
		log.Error("failed to load chats", sl.Err(err))
		os.Exit(1)
	}

	chatIDs := make([]int64, 0, len(summaries))
	for _, c := range summaries {
		chatIDs = append(chatIDs, c.ID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Session.DialTimeout)
	defer cancel()

	if err := transport.Connect(dialCtx, chatIDs); err != nil {
		// A session without a broker still reads and writes; only the
		// live fan-out is missing.
		log.Warn("broker unavailable, running detached", sl.Err(err))
	}
	defer transport.Disconnect()

	orchestrator := session.New(
		cfg.Session.UserID,
		messagesService,
		transport.Events(),
		cfg.Messages.HistoryPageSize,
		func(v session.View) {
			log.Debug("view updated",
				slog.Int64("active_chat_id", v.ActiveChatID),
				slog.Int("messages", len(v.Messages)),
			)
		},
		log,
	)

	if len(chatIDs) > 0 {
		orchestrator.SelectChat(chatIDs[0])
	}

	log.Info("session running",
		slog.Int64("user_id", cfg.Session.UserID),
		slog.Int("chats", len(chatIDs)),
	)

	orchestrator.Run(ctx)

	log.Info("session stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return setupPrettySlog()
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	return slog.New(opts.NewPrettyHandler(os.Stdout))
}

func setupUploads(ctx context.Context, cfg *appConfig.Config) (*uploads.Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Uploads.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Uploads.AccessKey, cfg.Uploads.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Uploads.Endpoint)
		o.UsePathStyle = true
	})

	presigner := s3.NewPresignClient(s3Client)

	return uploads.New(cfg.Uploads.Bucket, presigner, time.Duration(cfg.Uploads.PresignTTLSec)*time.Second), nil
}
