package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/admission"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/finance"
	"github.com/hms/hms/internal/domain/lab"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/realtime"
)

func main() {
	root := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management system API server",
	}
	root.AddCommand(serveCmd(), migrateCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// requestValidator adapts go-playground/validator to echo's Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.validate.Struct(i)
}

// schedulingBiller raises consultation bills from appointment completions.
type schedulingBiller struct {
	billing *billing.Service
}

func (b *schedulingBiller) CreateServiceBill(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, description string, createdBy *string) (uuid.UUID, error) {
	bill, err := b.billing.CreateBill(ctx, billing.CreateBillInput{
		PatientID:   patientID,
		Amount:      amount,
		Description: description,
		BillType:    billing.BillTypeMedicalService,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return bill.ID, nil
}

// labBiller raises lab bills inside the order transaction.
type labBiller struct {
	billing *billing.Service
}

func (b *labBiller) CreateLabBill(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, description string, createdBy *string) (uuid.UUID, error) {
	bill, err := b.billing.CreateBill(ctx, billing.CreateBillInput{
		PatientID:   patientID,
		Amount:      amount,
		Description: description,
		BillType:    billing.BillTypeLabTest,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return bill.ID, nil
}

// admissionSource feeds the billing aggregator from the admission domain.
type admissionSource struct {
	admissions *admission.Service
}

func (s *admissionSource) AdmissionPatient(ctx context.Context, admissionID uuid.UUID) (uuid.UUID, error) {
	a, err := s.admissions.Get(ctx, admissionID)
	if err != nil {
		return uuid.Nil, err
	}
	return a.PatientID, nil
}

func (s *admissionSource) ServiceLines(ctx context.Context, admissionID uuid.UUID) ([]billing.ServiceLine, error) {
	tl, err := s.admissions.GetTimeline(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	lines := make([]billing.ServiceLine, 0, len(tl.Services))
	for _, svc := range tl.Services {
		lines = append(lines, billing.ServiceLine{
			ServiceID:  svc.ID,
			Name:       svc.Name,
			Quantity:   svc.Quantity,
			UnitPrice:  svc.UnitPrice,
			TotalPrice: svc.TotalPrice,
		})
	}
	return lines, nil
}

func (s *admissionSource) MedicationLines(ctx context.Context, admissionID uuid.UUID) ([]billing.MedicationLine, error) {
	tl, err := s.admissions.GetTimeline(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	lines := make([]billing.MedicationLine, 0, len(tl.Medications))
	for _, med := range tl.Medications {
		lines = append(lines, billing.MedicationLine{
			MedicationID: med.MedicationID,
			Name:         med.Name,
			Quantity:     med.Quantity,
			UnitPrice:    med.UnitPrice,
		})
	}
	return lines, nil
}

func (s *admissionSource) AcknowledgeBilling(ctx context.Context, admissionID uuid.UUID) error {
	return s.admissions.MarkBilled(ctx, admissionID)
}

// stockDispenser lets the admission domain draw from pharmacy inventory.
type stockDispenser struct {
	pharmacy *pharmacy.Service
}

func (d *stockDispenser) Dispense(ctx context.Context, medicationID uuid.UUID, quantity int) (string, decimal.Decimal, error) {
	m, err := d.pharmacy.Dispense(ctx, medicationID, quantity)
	if err != nil {
		return "", decimal.Zero, err
	}
	return m.Name, m.UnitPrice, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			cancel()
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			defaultMedPrice, err := decimal.NewFromString(cfg.InpatientMedDefaultPrice)
			if err != nil {
				return fmt.Errorf("parse INPATIENT_MED_DEFAULT_PRICE: %w", err)
			}

			runner := db.NewPoolRunner(pool)
			hub := realtime.NewHub(logger)

			// Repositories
			patientRepo := patient.NewRepoPG(pool)
			appointmentRepo := scheduling.NewRepoPG(pool)
			admissionRepo := admission.NewRepoPG(pool)
			inpatientSvcRepo := admission.NewServiceRepoPG(pool)
			inpatientMedRepo := admission.NewMedicationRepoPG(pool)
			medicationRepo := pharmacy.NewRepoPG(pool)
			labTestRepo := lab.NewTestRepoPG(pool)
			labOrderRepo := lab.NewOrderRepoPG(pool)
			billRepo := billing.NewBillRepoPG(pool)
			billItemRepo := billing.NewBillItemRepoPG(pool)
			adjustmentRepo := billing.NewAdjustmentRepoPG(pool)
			paymentRepo := billing.NewPaymentRepoPG(pool)
			financeRepo := finance.NewRepoPG(pool)

			// Services
			billingSvc := billing.NewService(billRepo, billItemRepo, adjustmentRepo, paymentRepo, runner, logger)
			billingSvc.SetPublisher(hub)
			patientSvc := patient.NewService(patientRepo, logger)
			patientSvc.SetPublisher(hub)
			pharmacySvc := pharmacy.NewService(medicationRepo, logger)
			pharmacySvc.SetPublisher(hub)
			admissionSvc := admission.NewService(admissionRepo, inpatientSvcRepo, inpatientMedRepo,
				&stockDispenser{pharmacy: pharmacySvc}, runner, logger)
			admissionSvc.SetPublisher(hub)
			schedulingSvc := scheduling.NewService(appointmentRepo,
				&schedulingBiller{billing: billingSvc}, runner, logger)
			schedulingSvc.SetPublisher(hub)
			labSvc := lab.NewService(labTestRepo, labOrderRepo,
				&labBiller{billing: billingSvc}, runner, logger)
			labSvc.SetPublisher(hub)
			aggregator := billing.NewAggregator(&admissionSource{admissions: admissionSvc},
				billRepo, billItemRepo, runner, defaultMedPrice, logger)
			aggregator.SetPublisher(hub)
			financeSvc := finance.NewService(financeRepo, cfg.DefaultCurrency, logger)

			// HTTP server
			e := echo.New()
			e.HideBanner = true
			e.Validator = &requestValidator{validate: validator.New()}
			e.Use(middleware.Recovery(logger))
			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(logger))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.CORSOrigins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			}))
			e.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitRPS,
				BurstSize:         cfg.RateLimitBurst,
			}))

			e.GET("/health", func(c echo.Context) error {
				status := db.CheckHealth(c.Request().Context(), pool)
				code := http.StatusOK
				if !status.Healthy {
					code = http.StatusServiceUnavailable
				}
				return c.JSON(code, status)
			})

			api := e.Group("/api/v1")
			if cfg.IsDev() {
				api.Use(auth.DevAuthMiddleware())
			} else {
				api.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
			}

			patient.NewHandler(patientSvc).RegisterRoutes(api.Group("/patients"))
			scheduling.NewHandler(schedulingSvc).RegisterRoutes(api.Group("/appointments"))
			admission.NewHandler(admissionSvc).RegisterRoutes(api.Group("/admissions"))
			pharmacy.NewHandler(pharmacySvc).RegisterRoutes(api.Group("/medications"))
			lab.NewHandler(labSvc).RegisterRoutes(api.Group("/lab"))
			billing.NewHandler(billingSvc, aggregator).RegisterRoutes(api.Group("/billing"))
			finance.NewHandler(financeSvc).RegisterRoutes(api.Group("/finance",
				auth.RequireRole("finance")))
			hub.RegisterRoutes(e.Group(""))

			// Start and wait for shutdown
			errCh := make(chan error, 1)
			go func() {
				errCh <- e.Start(":" + cfg.Port)
			}()
			logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var statusOnly bool
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			cancel()
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			if statusOnly {
				statuses, err := migrator.Status(context.Background())
				if err != nil {
					return err
				}
				for _, st := range statuses {
					state := "pending"
					if st.Applied {
						state = "applied " + st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%3d  %-40s %s\n", st.Version, st.Name, state)
				}
				return nil
			}

			n, err := migrator.Up(context.Background())
			if err != nil {
				return err
			}
			logger.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "show migration status without applying")
	cmd.Flags().StringVar(&dir, "dir", "migrations", "migrations directory")
	return cmd
}
