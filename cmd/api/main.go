package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/mantleflow/risk-service/internal/handler"
	"github.com/mantleflow/risk-service/internal/integrations/registry"
	"github.com/mantleflow/risk-service/internal/middleware"
	"github.com/mantleflow/risk-service/internal/notify"
	"github.com/mantleflow/risk-service/internal/repository"
	"github.com/mantleflow/risk-service/internal/risk"
	"github.com/mantleflow/risk-service/internal/scheduler"
	"github.com/mantleflow/risk-service/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	engine, err := risk.NewEngine(risk.DefaultConfig(), logger)
	if err != nil {
		logger.Fatalf("Failed to build risk engine: %v", err)
	}
	repo := repository.NewRepository(db)
	machine := escalation.NewMachine()
	dispatcher := notify.NewDispatcher(cfg, nil, logger)
	registryClient := registry.NewClient(cfg, logger)
	svc := service.NewService(repo, engine, machine, dispatcher, registryClient, logger, cfg)
	h := handler.NewHandler(svc, logger)

	// Start escalation sweep
	sched, err := scheduler.New(svc, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/ai").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/risk-score", h.RiskScore).Methods("POST")
	authRouter.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id:[0-9]+}", h.GetLoan).Methods("GET")
	authRouter.HandleFunc("/risk-tiers", h.RiskTiers).Methods("GET")
	authRouter.HandleFunc("/osint", h.OSINT).Methods("POST")
	authRouter.HandleFunc("/agent/escalate", h.Escalate).Methods("POST")
	authRouter.HandleFunc("/agent/escalation-rules", h.EscalationRules).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
