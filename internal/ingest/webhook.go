package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/internal/signal"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

// Signature headers on incoming webhook requests
const (
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
)

const maxWebhookBody = 4 << 20 // 4 MiB

// Pipeline is the slice of the signal processor the ingress needs
type Pipeline interface {
	ProcessBuyEvent(ctx context.Context, ev signal.BuyEvent) ([]*signal.Result, error)
	EnrichAndValidate(ctx context.Context, sig *signal.Result) *signal.Result
	CreateAlert(ctx context.Context, sig *signal.Result, skipRugFailed bool) (*model.Alert, error)
}

// Server receives transaction webhooks and routes buys into the
// signal pipeline
type Server struct {
	httpServer *http.Server
	pipeline   Pipeline
	verifier   *Verifier
	limiter    *IPRateLimiter
	logger     *logger.Logger
}

// NewServer creates the webhook ingress server
func NewServer(cfg *config.Config, pipeline Pipeline, log *logger.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		verifier: NewVerifier(cfg.Security.WebhookSecret),
		limiter:  NewIPRateLimiter(float64(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst),
		logger:   log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/webhook/transactions", s.handleWebhook).Methods("POST")
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if !s.verifier.Enabled() {
		log.Warn("Webhook secret not configured, signature verification disabled")
	}

	return s
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting ingress server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingress server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ingress server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "solpulse-ingress",
	})
}

// handleWebhook accepts a single transaction or an array of them
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if err := s.verifier.Verify(body, r.Header.Get(headerSignature), r.Header.Get(headerTimestamp)); err != nil {
		s.logger.WithError(err).WithField("ip", clientIP(r)).Warn("Webhook rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	txs, err := decodeTransactions(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	alerts := s.processTransactions(r.Context(), txs)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": len(txs),
		"alerts":    alerts,
	})
}

// decodeTransactions accepts both a bare object and an array
func decodeTransactions(body []byte) ([]*Transaction, error) {
	var txs []*Transaction
	if err := json.Unmarshal(body, &txs); err == nil {
		return txs, nil
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, err
	}
	return []*Transaction{&tx}, nil
}

type alertSummary struct {
	AlertID int64            `json:"alert_id"`
	Type    model.SignalType `json:"type"`
	Token   string           `json:"token"`
}

// processTransactions runs each parsed buy through the pipeline.
// Per-transaction failures are logged and skipped so one bad entry
// never drops the rest of the batch.
func (s *Server) processTransactions(ctx context.Context, txs []*Transaction) []alertSummary {
	alerts := []alertSummary{}

	for _, tx := range txs {
		swap := ParseSwap(tx)
		if swap == nil {
			continue
		}

		results, err := s.pipeline.ProcessBuyEvent(ctx, swap.Event)
		if err != nil {
			s.logger.WithError(err).WithField("signature", swap.Event.TxSignature).Error("Buy event processing failed")
			continue
		}

		for _, result := range results {
			enriched := s.pipeline.EnrichAndValidate(ctx, result)

			alert, err := s.pipeline.CreateAlert(ctx, enriched, true)
			if err != nil {
				s.logger.WithError(err).WithField("token", model.ShortAddress(swap.Event.TokenAddress)).Error("Alert creation failed")
				continue
			}
			if alert == nil {
				continue
			}
			alerts = append(alerts, alertSummary{
				AlertID: alert.ID,
				Type:    alert.Type,
				Token:   alert.TokenAddress,
			})
		}
	}
	return alerts
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(map[string]interface{}{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
