package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/config"
	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/observability"
)

const (
	homeText       = "Azure AI Chatbot Backend is running!"
	clearedMessage = "Conversation cleared successfully"

	msgNoMessage   = "No message provided"
	msgAuthFailed  = "Authentication failed. Please check your Azure OpenAI credentials."
	msgRateLimited = "Rate limit exceeded. Please try again later."
	msgUnexpected  = "An unexpected error occurred. Please try again."
)

// ChatService is the request-level chat logic the handlers delegate to.
type ChatService interface {
	Send(ctx context.Context, clientID, message string) (string, error)
	Clear(ctx context.Context, clientID string) error
	Configured() bool
}

type Server struct {
	cfg      config.Config
	chat     ChatService
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chat ChatService, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		chat:    chat,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				if originAllowed(cfg.CORSOrigins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.cfg.TrustProxyHeaders {
		// Client identity follows X-Forwarded-For / X-Real-IP only when explicitly enabled.
		r.Use(middleware.RealIP)
	}
	r.Use(s.recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/clear", s.handleClear)
	r.Get("/chat/ws", s.handleChatWS)
	r.Get("/perf/latency", s.handlePerfLatency)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	return r
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(homeText))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:                "healthy",
		AzureOpenAIConfigured: s.chat != nil && s.chat.Configured(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	clientID := clientIDFrom(r)

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.Message == nil {
		s.observe("http", "invalid_input", started)
		respondError(w, http.StatusBadRequest, msgNoMessage)
		return
	}

	reply, err := s.chat.Send(r.Context(), clientID, *req.Message)
	if err != nil {
		status, message := errorStatus(err)
		if status == http.StatusInternalServerError && completion.Classify(err) == completion.KindUnknown {
			s.log.Error().Str("client_id", clientID).Err(err).Msg("unexpected chat error")
		}
		s.observe("http", outcomeFor(err), started)
		respondError(w, status, message)
		return
	}

	s.observe("http", "ok", started)
	respondJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFrom(r)
	if err := s.chat.Clear(r.Context(), clientID); err != nil {
		s.log.Error().Str("client_id", clientID).Err(err).Msg("clear conversation failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, clearResponse{Message: clearedMessage})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

// recoverJSON turns handler panics into the generic 500 body.
func (s *Server) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error().
				Str("client_id", clientIDFrom(r)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rec).
				Msg("handler panic")
			respondError(w, http.StatusInternalServerError, msgUnexpected)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(transport, outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRequest(transport, outcome, time.Since(started))
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

// errorStatus maps a chat error to its HTTP status and client-facing message.
func errorStatus(err error) (int, string) {
	if errors.Is(err, conversation.ErrInvalidInput) {
		return http.StatusBadRequest, msgNoMessage
	}
	switch completion.Classify(err) {
	case completion.KindAuth:
		return http.StatusUnauthorized, msgAuthFailed
	case completion.KindRateLimited:
		return http.StatusTooManyRequests, msgRateLimited
	case completion.KindUpstream, completion.KindTransport:
		return http.StatusInternalServerError, "API error: " + err.Error()
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, conversation.ErrInvalidInput) {
		return "invalid_input"
	}
	return string(completion.Classify(err))
}

// clientIDFrom derives the conversation key from the peer address. Clients
// sharing an address share a conversation.
func clientIDFrom(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type clearResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status                string `json:"status"`
	AzureOpenAIConfigured bool   `json:"azure_openai_configured"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
