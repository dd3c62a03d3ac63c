// Package server assembles the HTTP API: middleware chain, health routes
// and every domain handler under /api/v1.
package server

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/document"
	"github.com/ehr/records/internal/platform/events"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/internal/storage/memory"
)

const Version = "0.1.0"

// Repositories is one storage backend.
type Repositories struct {
	Tx           identity.TxRunner
	Identities   identity.IdentityRepository
	Patients     identity.PatientRepository
	Doctors      identity.DoctorRepository
	Appointments scheduling.AppointmentRepository
	Records      clinical.RecordRepository
}

// PostgresRepositories binds every repository to pool.
func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Tx:           db.NewTxManager(pool),
		Identities:   identity.NewIdentityRepo(pool),
		Patients:     identity.NewPatientRepo(pool),
		Doctors:      identity.NewDoctorRepo(pool),
		Appointments: scheduling.NewAppointmentRepo(pool),
		Records:      clinical.NewRecordRepo(pool),
	}
}

// MemoryRepositories binds every repository to store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Tx:           store,
		Identities:   store.Identities(),
		Patients:     store.Patients(),
		Doctors:      store.Doctors(),
		Appointments: store.Appointments(),
		Records:      store.Records(),
	}
}

type Options struct {
	Repos  Repositories
	Tokens *auth.TokenService
	Logger zerolog.Logger

	// Pool enables /health/db when set.
	Pool *pgxpool.Pool

	Events   events.Publisher
	Renderer document.Renderer
	Clock    auth.Clock

	SignupRoles   []auth.Role
	LoginCounter  middleware.AttemptCounter
	LoginThrottle middleware.LoginThrottleConfig
	RateLimit     middleware.RateLimitConfig
	CORSOrigins   []string
	BodyLimit     string
	Timeout       time.Duration
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RateLimit.RequestsPerSecond <= 0 {
		opts.RateLimit = middleware.DefaultRateLimitConfig()
	}
	logger := opts.Logger
	repos := opts.Repos

	guard := auth.NewGuard(auth.NewPolicyEngine(auth.DefaultPolicies()), identity.NewOwnerResolver(repos.Patients, repos.Doctors))

	identitySvc := identity.NewService(repos.Tx, repos.Identities, repos.Patients, repos.Doctors, opts.Tokens, guard,
		identity.Options{SignupRoles: opts.SignupRoles, Logger: logger})
	schedulingSvc := scheduling.NewService(repos.Appointments, repos.Patients, repos.Doctors, guard, opts.Events, opts.Clock, logger)
	clinicalSvc := clinical.NewService(clinical.Deps{
		Tx:           repos.Tx,
		Records:      repos.Records,
		Appointments: repos.Appointments,
		Patients:     repos.Patients,
		Guard:        guard,
		Renderer:     opts.Renderer,
		Events:       opts.Events,
		Clock:        opts.Clock,
		Logger:       logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = errorHandler(e, logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	if len(opts.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{"Authorization", "Content-Type", "If-Match", middleware.RequestIDHeader},
			ExposeHeaders: []string{"ETag", "Content-Disposition", middleware.RequestIDHeader},
		}))
	}
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
	if opts.Timeout > 0 {
		e.Use(middleware.RequestTimeout(opts.Timeout))
	}
	e.Use(auth.Authenticate(opts.Tokens, identitySvc, auth.AuthSkipper))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	if opts.Pool != nil {
		e.GET("/health/db", db.HealthHandler(opts.Pool))
	}

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(opts.RateLimit))

	identity.NewHandler(identitySvc).RegisterRoutes(api,
		middleware.LoginThrottle(opts.LoginCounter, opts.LoginThrottle, logger))
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(api)

	return e
}

// errorHandler converts domain errors that reach echo unconverted and logs
// the cause of server faults before the default {"message": ...} response.
func errorHandler(e *echo.Echo, logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		he := apperr.ToHTTP(err)
		if he.Code >= http.StatusInternalServerError && he.Internal != nil {
			rid := middleware.RequestIDFrom(c)
			logger.Error().Err(he.Internal).Str("request_id", rid).Str("route", c.Path()).Msg("request failed")
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}
