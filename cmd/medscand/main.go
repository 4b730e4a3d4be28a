package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/medscan/internal/auth"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/conversation"
	"github.com/joseph-ayodele/medscan/internal/export"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/llm"
	"github.com/joseph-ayodele/medscan/internal/llm/openai"
	"github.com/joseph-ayodele/medscan/internal/ocr"
	"github.com/joseph-ayodele/medscan/internal/pipeline"
	repo "github.com/joseph-ayodele/medscan/internal/repository"
	"github.com/joseph-ayodele/medscan/internal/server"
	"github.com/joseph-ayodele/medscan/internal/services/user"
)

func main() {
	cfg := common.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	model := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.OCRModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	recognizer, err := ocr.NewRecognizer(cfg.OCR.Backend, ocr.TesseractConfig{
		Lang:        cfg.OCR.Lang,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         6,
		OEM:         1,
	}, model, logger)
	if err != nil {
		logger.Error("failed to configure OCR", "error", err)
		os.Exit(2)
	}
	extractor := ocr.NewExtractor(ocr.Config{
		DPI:             cfg.OCR.DPI,
		MaxPages:        cfg.OCR.MaxPages,
		MinDigitalChars: cfg.OCR.MinDigitalChars,
	}, recognizer, logger)

	store, err := newConversationStore(ctx, cfg.Conversation, logger)
	if err != nil {
		logger.Error("failed to set up conversation store", "store", cfg.Conversation.Store, "error", err)
		os.Exit(1)
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to configure auth", "error", err)
		os.Exit(2)
	}

	rec := ledger.New(db, logger)
	users := user.NewService(db.Users(), db.Activities(), rec, logger)
	proc := pipeline.NewProcessor(pipeline.Config{
		DefaultLanguage: cfg.Pipeline.DefaultLanguage,
		ExtractTimeout:  cfg.Pipeline.ExtractTimeout,
		ModelTimeout:    cfg.LLM.Timeout,
	}, extractor, db.Users(), model, rec, store, logger)

	api := server.New(server.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CookieSecure:   cfg.Server.CookieSecure,
	}, users, proc, export.NewService(users, logger), issuer, db, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if addr := cfg.Server.GRPCHealthAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", addr, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		go server.WatchDatabaseHealth(ctx, db, healthServer, cfg.Server.HealthInterval, 3*time.Second, logger)

		logger.Info("grpc health listening", "addr", addr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
			}
		}()
	}

	logger.Info("medscan listening", "addr", cfg.Server.HTTPAddr, "db", db.Dialect(), "ocr", cfg.OCR.Backend, "store", cfg.Conversation.Store)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}
}

func newConversationStore(ctx context.Context, cfg common.ConversationConfig, logger *slog.Logger) (conversation.Store, error) {
	if cfg.Store == "redis" {
		s, err := conversation.NewRedisStore(conversation.NewRedisPool(cfg.RedisURL), llm.ChatPreamble, cfg.TTL, cfg.MaxMessages, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			return nil, err
		}
		return s, nil
	}

	mem := conversation.NewMemoryStore(llm.ChatPreamble,
		conversation.WithTTL(cfg.TTL),
		conversation.WithMaxMessages(cfg.MaxMessages),
		conversation.WithLogger(logger),
	)
	go mem.RunJanitor(ctx, time.Minute)
	return mem, nil
}
