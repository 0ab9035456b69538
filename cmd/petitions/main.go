package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petitionator/api/pkg/auth"
	"github.com/petitionator/api/pkg/cache"
	"github.com/petitionator/api/pkg/config"
	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/experiments"
	"github.com/petitionator/api/pkg/jobs"
	"github.com/petitionator/api/pkg/notifications"
	"github.com/petitionator/api/pkg/referral"
	"github.com/petitionator/api/pkg/routes"
	"github.com/petitionator/api/pkg/signatures"
	"github.com/petitionator/api/pkg/tokens"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v\n", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: conf.RedisAddr(),
	})

	d, err := gorm.Open(postgres.Open(conf.PostgresURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v\n", err)
	}

	if err := database.InitDatabase(d); err != nil {
		log.Fatalf("failed to migrate database: %v\n", err)
	}
	db := database.GetDatabase()

	memberTokens := tokens.NewHasher(conf.TokenSecret, tokens.MemberScope)
	sentEmailTokens := tokens.NewHasher(conf.TokenSecret, tokens.SentEmailScope)

	lookup := referral.NewGormLookup(db, &cache.TokenIndex{RedisClient: redisClient}, memberTokens, sentEmailTokens)
	tracker := experiments.NewTracker(redisClient)

	mailer := notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:     conf.SMTPHost,
		Port:     conf.SMTPPort,
		Username: conf.SMTPUsername,
		Password: conf.SMTPPassword,
		From:     conf.MailFrom,
	})

	signatureService := signatures.NewService(
		signatures.NewGormStore(db, memberTokens),
		referral.NewResolver(lookup),
		tracker,
		notifications.NewDispatcher(mailer, conf.BaseURL),
		auth.NewCookieIssuer(memberTokens),
	)

	sched, err := jobs.StartTokenBackfill(
		jobs.NewTokenBackfill(db, memberTokens, sentEmailTokens),
		conf.TokenBackfillInterval,
	)
	if err != nil {
		log.Fatalf("failed to start token backfill: %v\n", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Mount("/petitions/{petitionID}/signatures", routes.NewSignatureRoutes(signatureService, conf.BaseURL, conf.SignRateLimit).Routes())
	r.Mount("/petitions/{petitionID}", routes.NewPetitionRoutes(db).Routes())
	r.Mount("/members", routes.NewMemberRoutes(db, lookup).Routes())
	r.Mount("/experiments", routes.NewExperimentRoutes(tracker).Routes())

	srv := &http.Server{
		Addr:    conf.Addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v\n", err)
		}
	}()

	log.Printf("listening on %s\n", conf.Addr)

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("failed to shut down server: %v\n", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("failed to stop scheduler: %v\n", err)
	}
	redisClient.Close()
}
