package main // Entry point

import (
	"log"

	"github.com/labstack/echo/v4"

	"github.com/meridianpress/editorial-backend/internal/config"
	"github.com/meridianpress/editorial-backend/internal/database"
	"github.com/meridianpress/editorial-backend/internal/handler"
	"github.com/meridianpress/editorial-backend/internal/mail"
	"github.com/meridianpress/editorial-backend/internal/queue"
	"github.com/meridianpress/editorial-backend/internal/repository"
	"github.com/meridianpress/editorial-backend/internal/router"
	"github.com/meridianpress/editorial-backend/internal/service"
	"github.com/meridianpress/editorial-backend/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err) // aggregated list of every missing/invalid variable
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)

	auth := service.NewAuthService(users, sessions, queue.NewPublisher(), service.SystemClock(), service.AuthConfig{
		JWTSecret:     cfg.JWTSecret,
		AccessTTLMin:  cfg.AccessTTLMin,
		MaxSessions:   cfg.MaxSessions,
		RenewExpire:   cfg.RenewExpire,
		BcryptCost:    cfg.BcryptCost,
		ResetTokenTTL: cfg.ResetTokenTTL,
		WebsiteURL:    cfg.WebsiteURL,
	})

	// Mail delivery happens off the request path: jobs go through the
	// broker and this worker sends them over SMTP.
	mailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	go func() {
		if err := queue.StartMailConsumer(mailer); err != nil {
			log.Printf("mail-consumer: stopped: %v", err)
		}
	}()

	if _, err := sweeper.Start(cfg.SweepCron, auth); err != nil {
		log.Fatalf("sweeper: %v", err)
	}

	e := echo.New()
	router.Register(e, router.Deps{
		Auth:     handler.NewAuthHandler(auth),
		Users:    handler.NewUserHandler(users, auth),
		Sessions: sessions,
		Cfg:      cfg,
		Redis:    config.NewRedisClient(), // nil disables rate limit + cache
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
