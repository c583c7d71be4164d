// Package webhook exposes the inbound HTTP surface for WhatsApp
// messages. Requests are authenticated against the gateway signature
// before anything else happens; a bad signature produces a 403 and no
// side effects. Valid messages are acknowledged with 202 immediately
// and processed asynchronously.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"pavebot/pkg/config"
	"pavebot/pkg/pipeline"
)

const (
	signatureHeader = "X-Twilio-Signature"
	maxBodyBytes    = 64 * 1024
	shutdownTimeout = 10 * time.Second
)

// Processor consumes one normalized message.
type Processor interface {
	Process(ctx context.Context, env pipeline.Envelope) pipeline.Outcome
}

// SignatureValidator authenticates webhook requests. Form requests sign
// the effective URL plus the posted parameters; JSON requests sign the
// effective URL plus the raw body.
type SignatureValidator interface {
	ValidateForm(url string, params map[string]string, signature string) bool
	ValidateBody(url string, body []byte, signature string) bool
}

// Server is the webhook HTTP listener.
type Server struct {
	addr      string
	processor Processor
	validator SignatureValidator
	log       *slog.Logger

	processCtx context.Context
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
}

// NewServer builds the listener; it does not bind until Start.
func NewServer(cfg config.ServerConfig, processor Processor, validator SignatureValidator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	// Processing runs detached from request contexts so a closed HTTP
	// connection never cancels a turn mid-flight.
	processCtx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		processor:  processor,
		validator:  validator,
		log:        log.With("component", "webhook"),
		processCtx: processCtx,
		cancel:     cancel,
	}
}

// Start serves until ctx is canceled, then drains in-flight messages
// and shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/whatsapp", s.handleForm)
	mux.HandleFunc("POST /webhook/whatsapp/json", s.handleJSON)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Webhook server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Webhook shutdown did not complete cleanly", "error", err)
	}

	s.inflight.Wait()
	s.cancel()
	s.log.Info("Webhook server stopped")
	return nil
}

// handleForm receives Twilio's form-encoded delivery.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	if !s.validator.ValidateForm(effectiveURL(r), params, r.Header.Get(signatureHeader)) {
		s.log.Warn("Rejected webhook with invalid signature", "path", r.URL.Path)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.accept(w, pipeline.Envelope{
		MessageID: params["MessageSid"],
		Sender:    normalizeMSISDN(params["From"]),
		Body:      params["Body"],
	})
}

// handleJSON receives the JSON delivery used by gateway emulators and
// internal tooling. The signature covers the raw body.
func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !s.validator.ValidateBody(effectiveURL(r), body, r.Header.Get(signatureHeader)) {
		s.log.Warn("Rejected webhook with invalid signature", "path", r.URL.Path)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var payload struct {
		MessageID string `json:"message_id"`
		From      string `json:"from"`
		Body      string `json:"body"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.accept(w, pipeline.Envelope{
		MessageID: payload.MessageID,
		Sender:    normalizeMSISDN(payload.From),
		Body:      payload.Body,
	})
}

// accept acknowledges the message and hands it to the pipeline on a
// detached context, so slow turns never block the webhook response.
func (s *Server) accept(w http.ResponseWriter, env pipeline.Envelope) {
	if env.Sender == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.log.Info("Message accepted", "message_id", env.MessageID, "sender", maskSender(env.Sender))

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.processor.Process(s.processCtx, env)
	}()

	w.WriteHeader(http.StatusAccepted)
}

// effectiveURL reconstructs the URL the gateway signed, honoring the
// reverse-proxy forwarding headers.
func effectiveURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	return scheme + "://" + host + r.URL.RequestURI()
}

// normalizeMSISDN strips the whatsapp: scheme and spacing so the rest
// of the system sees one canonical +<digits> form per sender.
func normalizeMSISDN(from string) string {
	number := strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:")
	number = strings.ReplaceAll(number, " ", "")
	if number == "" {
		return ""
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}

	return number
}

func maskSender(sender string) string {
	if len(sender) <= 4 {
		return "****"
	}

	return strings.Repeat("*", len(sender)-4) + sender[len(sender)-4:]
}
