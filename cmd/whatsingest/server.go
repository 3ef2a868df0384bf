package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	maxWebhookBodySize = 1 << 20 // 1 MB
	shutdownTimeout    = 10 * time.Second
)

// server receives Business API webhook notifications and feeds them
// through the ingestion client and into the message store.
type server struct {
	app    *app
	logger *logrus.Logger
}

func newServer(a *app) *server {
	return &server{app: a, logger: a.logger}
}

func (s *server) run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/webhook/whatsapp", s.handleVerification).Methods(http.MethodGet)
	router.HandleFunc("/webhook/whatsapp", s.handleWebhook).Methods(http.MethodPost)

	httpServer := &http.Server{
		Addr:         s.app.cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("Webhook receiver listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down webhook receiver")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleVerification answers the subscription handshake: echo
// hub.challenge when the verify token matches.
func (s *server) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != s.app.cfg.Server.VerifyToken {
		s.logger.Warn("Webhook verification rejected")
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !verifySignature(s.app.cfg.Server.WebhookSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("Webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// Acknowledge before heavy work so the provider does not redeliver;
	// processing failures are logged, not surfaced.
	w.WriteHeader(http.StatusOK)

	msg := s.app.client.ProcessWebhookMessage(r.Context(), body)
	if msg == nil {
		return
	}

	inserted, err := s.app.store.SaveMessage(r.Context(), msg.ToRecord(), "")
	if err != nil {
		s.logger.WithError(err).Warn("Failed to save webhook message")
		return
	}
	if !inserted {
		s.logger.WithField("type", msg.Type).Debug("Duplicate webhook message ignored")
		return
	}

	if msg.Media != nil && msg.Media.URL != "" {
		path, err := s.app.client.DownloadMedia(r.Context(), msg.Media.URL, msg.Media.Filename, s.app.cfg.Media.OutputDir)
		if err != nil {
			s.logger.WithError(err).Warn("Webhook media download failed")
			return
		}
		if err := s.app.store.UpdateMediaPath(r.Context(), msg.ID, path); err != nil {
			s.logger.WithError(err).Warn("Failed to record media path")
		}
	}
}
