// Package webhook receives Webex webhook callbacks and feeds the
// announced messages to the bot.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/model"
	"github.com/iamvkosarev/webex-ai-bot/internal/webex"
)

const (
	maxBodySize     = 1 << 20
	eventQueueSize  = 64
	shutdownTimeout = 10 * time.Second
)

type MessageGetter interface {
	GetMessage(ctx context.Context, messageID string) (*webex.Message, error)
}

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg model.Message) error
}

type ServerDeps struct {
	Webex   MessageGetter
	Handler MessageHandler
}

type Server struct {
	ServerDeps
	cfg         config.Listener
	secret      string
	botPersonID string
	events      chan webex.WebhookData
}

func NewServer(cfg config.Listener, secret, botPersonID string, deps ServerDeps) *Server {
	return &Server{
		ServerDeps:  deps,
		cfg:         cfg,
		secret:      secret,
		botPersonID: botPersonID,
		events:      make(chan webex.WebhookData, eventQueueSize),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/webhook", s.handleWebhook)
	return r
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if s.secret != "" {
		signature := r.Header.Get(webex.SignatureHeader)
		if !webex.VerifySignature(s.secret, body, signature) {
			slog.Warn("webhook signature mismatch")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event webex.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if event.Resource != webex.WebhookResourceMessages || event.Event != webex.WebhookEventCreated {
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Data.PersonID == s.botPersonID {
		w.WriteHeader(http.StatusOK)
		return
	}

	select {
	case s.events <- event.Data:
		w.WriteHeader(http.StatusAccepted)
	default:
		slog.Warn("webhook queue full, dropping event", "message_id", event.Data.ID)
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}
}

// Run drains the webhook queue. Messages are handled one at a time so
// replies within a room keep conversation order.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-s.events:
			s.handleEvent(ctx, data)
		}
	}
}

func (s *Server) handleEvent(ctx context.Context, data webex.WebhookData) {
	// Webhook payloads carry no message text, so fetch the full message.
	msg, err := s.Webex.GetMessage(ctx, data.ID)
	if err != nil {
		slog.Error("failed to get message", "message_id", data.ID, "error", err)
		return
	}
	if err := s.Handler.HandleMessage(ctx, toModelMessage(*msg)); err != nil {
		slog.Error("failed to handle message", "room_id", msg.RoomID, "error", err)
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down webhook server", "error", err)
		}
	}()

	slog.Info("webhook server started", "addr", s.cfg.ListenAddr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func toModelMessage(msg webex.Message) model.Message {
	text := msg.Text
	if text == "" {
		text = msg.Markdown
	}
	return model.Message{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		PersonID:    msg.PersonID,
		PersonEmail: msg.PersonEmail,
		Text:        text,
		Created:     msg.Created,
	}
}
