package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/handlers"
	httpmw "github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/platform/cache"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/platform/mailer"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/internal/service"
	"github.com/Virang41/visiting/pkg/config"
	"github.com/Virang41/visiting/pkg/database"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
	"github.com/Virang41/visiting/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var idempotencyStore middleware.IdempotencyStore
	redisStore, err := cache.NewRedisStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, idempotency replay disabled", "error", err)
	} else {
		defer redisStore.Close()
		idempotencyStore = redisStore
	}

	var bus *events.NATSEventBus
	if cfg.NATS.URL != "" {
		bus, err = events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", "error", err)
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	mail := buildMailer(cfg.Email)
	clk := clock.System()

	users := postgres.NewUsersRepo(pool)
	visitors := postgres.NewVisitorsRepo(pool)
	appts := postgres.NewAppointmentsRepo(pool)
	passes := postgres.NewPassesRepo(pool)
	checks := postgres.NewCheckEventsRepo(pool)

	var pub events.Publisher
	if bus != nil {
		pub = bus
	}

	authSvc := service.NewAuthService(users, pub, cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.ResetTokenTTL)
	otpSvc := service.NewOTPService(users, mail, pub, clk, cfg.Auth.OTPTTL)
	visitorSvc := service.NewVisitorService(visitors)
	apptSvc := service.NewAppointmentService(appts, visitors, mail, pub, clk)
	passSvc := service.NewPassService(passes, visitors, users, pub, clk)
	scanSvc := service.NewScanService(checks, pub, clk)

	router := buildRouter(cfg, pool, idempotencyStore,
		handlers.NewAuthHandler(authSvc, otpSvc, users),
		handlers.NewVisitorHandler(visitorSvc, passSvc),
		handlers.NewAppointmentHandler(apptSvc, users),
		handlers.NewPassHandler(passSvc, scanSvc),
		handlers.NewCheckinHandler(scanSvc),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if bus != nil {
		g.Go(func() error { return runAuditLog(gctx, bus) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func buildRouter(cfg *config.Config, pool *pgxpool.Pool, idem middleware.IdempotencyStore,
	auth *handlers.AuthHandler,
	visitors *handlers.VisitorHandler,
	appts *handlers.AppointmentHandler,
	passes *handlers.PassHandler,
	checkin *handlers.CheckinHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireJWT := httpmw.RequireJWT(cfg.Auth.JWTSecret)
	staff := httpmw.RequireRole(domain.RoleAdmin, domain.RoleSecurity, domain.RoleEmployee)
	gate := httpmw.RequireRole(domain.RoleAdmin, domain.RoleSecurity)

	otpLimiter := httpmw.NewRateLimiter(pool, httpmw.RateLimitConfig{
		Requests: 5,
		Window:   10 * time.Minute,
		KeyFunc:  httpmw.OTPRequestKeyFunc,
	})

	r.Mount("/auth", auth.Routes(otpLimiter.Middleware()))
	r.Group(func(r chi.Router) {
		r.Use(requireJWT)
		r.Mount("/me", auth.MeRoutes())

		r.Group(func(r chi.Router) {
			r.Use(staff)
			r.Mount("/visitors", visitors.Routes())
			r.Mount("/appointments", appts.Routes())
		})
		r.Group(func(r chi.Router) {
			if idem != nil {
				r.Use(middleware.Idempotency(idem))
			}
			r.Mount("/passes", passes.Routes(gate))
			r.Group(func(r chi.Router) {
				r.Use(gate)
				r.Mount("/checkin", checkin.Routes())
			})
		})
	})

	return r
}

func buildMailer(cfg config.EmailConfig) mailer.Service {
	switch {
	case cfg.DevMode:
		return mailer.NewDevMailer()
	case cfg.MailerSendKey != "":
		return mailer.NewMailer(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	case cfg.SMTPHost != "":
		return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	default:
		return mailer.NewDevMailer()
	}
}

// runAuditLog mirrors every domain event into the structured log so there is
// an operator-visible trail even without a downstream consumer.
func runAuditLog(ctx context.Context, bus *events.NATSEventBus) error {
	subjects := []string{
		events.OTPIssued, events.PasswordReset,
		events.AppointmentApproved, events.AppointmentRejected,
		events.PassIssued, events.PassRevoked,
		events.VisitorCheckedIn, events.VisitorCheckedOut,
	}
	for _, subject := range subjects {
		if err := bus.QueueSubscribe(subject, "audit", func(msg *events.Message) {
			logger.Info("Audit event", "subject", msg.Subject, "payload", string(msg.Data))
		}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}
