package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindline/platform/internal/doctors"
	"github.com/mindline/platform/internal/escalation"
	"github.com/mindline/platform/internal/feedback"
	httpmiddleware "github.com/mindline/platform/internal/http/middleware"
	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/internal/realtime"
	"github.com/mindline/platform/internal/session"
	"github.com/mindline/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	DoctorsHandler     *doctors.Handler
	PatientsHandler    *patients.Handler
	EscalationHandler  *escalation.Handler
	SessionHandler     *session.Handler
	FeedbackHandler    *feedback.Handler
	Gateway            *realtime.Gateway
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health, metrics, realtime socket)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Gateway != nil {
			public.Get("/ws", cfg.Gateway.HandleWebSocket)
		}
	})

	r.Route("/doctors", func(r chi.Router) {
		r.Post("/", cfg.DoctorsHandler.Register)
		r.Get("/{doctorID}", cfg.DoctorsHandler.Get)
		r.Post("/{doctorID}/status", cfg.DoctorsHandler.SetStatus)
		r.Post("/{doctorID}/heartbeat", cfg.DoctorsHandler.Heartbeat)
	})

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", cfg.PatientsHandler.Register)
		r.Get("/{patientID}", cfg.PatientsHandler.Get)
	})

	r.Route("/escalations", func(r chi.Router) {
		r.Post("/", cfg.EscalationHandler.Escalate)
		r.Post("/analyze", cfg.EscalationHandler.Analyze)
		r.Get("/{requestID}", cfg.EscalationHandler.Status)
		r.Post("/{requestID}/accept", cfg.EscalationHandler.Accept)
		r.Post("/{requestID}/reject", cfg.EscalationHandler.Reject)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/rooms", cfg.SessionHandler.CreateRoom)
		r.Get("/rooms/{roomID}", cfg.SessionHandler.GetRoom)
		r.Post("/feedback", cfg.FeedbackHandler.Submit)
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
