package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/observability"
	"github.com/antoniostano/azchat/internal/policy"
	"github.com/antoniostano/azchat/internal/transcript"
)

const archiveTimeout = 5 * time.Second

// Options wires a Service.
type Options struct {
	Store      *conversation.Store
	Gateway    completion.Gateway
	Archive    transcript.Store
	Metrics    *observability.Metrics
	Redactor   policy.Redactor
	Params     completion.Params
	Configured bool
	Logger     zerolog.Logger
}

// Service runs one chat exchange against the conversation store and the completion gateway.
type Service struct {
	store      *conversation.Store
	gateway    completion.Gateway
	archive    transcript.Store
	metrics    *observability.Metrics
	redactor   policy.Redactor
	params     completion.Params
	configured bool
	log        zerolog.Logger
}

func New(opts Options) *Service {
	store := opts.Store
	if store == nil {
		store = conversation.NewStore(conversation.Options{})
	}
	archive := opts.Archive
	if archive == nil {
		archive = transcript.NewInMemoryStore()
	}
	return &Service{
		store:      store,
		gateway:    opts.Gateway,
		archive:    archive,
		metrics:    opts.Metrics,
		redactor:   opts.Redactor,
		params:     opts.Params,
		configured: opts.Configured,
		log:        opts.Logger,
	}
}

// Configured reports whether the upstream deployment has real credentials.
func (s *Service) Configured() bool { return s.configured }

func (s *Service) Store() *conversation.Store { return s.store }

// Send appends the user message, trims the window, asks the gateway for a
// reply and records it. The user turn stays in history when the gateway fails.
// A reply that arrives after the conversation was cleared is returned to the
// caller but not recorded.
func (s *Service) Send(ctx context.Context, clientID, message string) (string, error) {
	if s.gateway == nil {
		return "", errors.New("completion gateway not configured")
	}
	if err := s.store.AppendUser(clientID, message); err != nil {
		return "", err
	}
	s.store.Trim(clientID, s.store.MaxTurns())
	s.updateGauge()

	logged, _ := s.redactor.Redact(message)
	s.log.Info().Str("client_id", clientID).Str("message", logged).Msg("processing message")

	turns, gen := s.store.Window(clientID)

	started := time.Now()
	reply, err := s.gateway.Complete(ctx, turns, s.params)
	elapsed := time.Since(started)
	kind := completion.Classify(err)
	if s.metrics != nil {
		s.metrics.ObserveCompletion(elapsed, string(kind))
		s.metrics.PromptTokens.Observe(float64(estimatePromptTokens(turns)))
	}
	if err != nil {
		s.logFailure(clientID, kind, err)
		return "", err
	}

	if !s.store.AppendAssistant(clientID, gen, reply.Content) {
		// Cleared or expired while the completion was in flight.
		s.log.Warn().Str("client_id", clientID).Msg("conversation reset during completion; reply not recorded")
		return reply.Content, nil
	}
	s.log.Info().Str("client_id", clientID).Dur("latency", elapsed).Msg("response generated")

	s.archiveTurns(ctx, clientID,
		conversation.Turn{Role: conversation.RoleUser, Content: message},
		reply,
	)
	return reply.Content, nil
}

// Clear drops the client's conversation. Clearing an unknown client is not an error.
func (s *Service) Clear(_ context.Context, clientID string) error {
	s.store.Clear(clientID)
	s.updateGauge()
	if s.metrics != nil {
		s.metrics.ConversationEvents.WithLabelValues("cleared").Inc()
	}
	s.log.Info().Str("client_id", clientID).Msg("conversation cleared")
	return nil
}

// Expired is the janitor hook for idle conversations.
func (s *Service) Expired(clientID string) {
	s.updateGauge()
	if s.metrics != nil {
		s.metrics.ConversationEvents.WithLabelValues("expired").Inc()
	}
	s.log.Debug().Str("client_id", clientID).Msg("conversation expired")
}

func (s *Service) logFailure(clientID string, kind completion.Kind, err error) {
	ev := s.log.Error().Str("client_id", clientID).Str("kind", string(kind)).Err(err)
	switch kind {
	case completion.KindAuth:
		ev.Msg("azure openai authentication failed")
	case completion.KindRateLimited:
		ev.Msg("azure openai rate limit exceeded")
	case completion.KindUpstream:
		ev.Msg("azure openai api error")
	default:
		ev.Msg("completion failed")
	}
}

func (s *Service) archiveTurns(ctx context.Context, clientID string, turns ...conversation.Turn) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	for _, t := range turns {
		content, redacted := s.redactor.Redact(t.Content)
		err := s.archive.SaveTurn(actx, transcript.Record{
			ClientID:    clientID,
			Role:        string(t.Role),
			Content:     content,
			PIIRedacted: redacted,
		})
		if err != nil {
			s.log.Warn().Str("client_id", clientID).Err(err).Msg("transcript archive failed")
			return
		}
	}
}

func (s *Service) updateGauge() {
	if s.metrics != nil {
		s.metrics.ActiveConversations.Set(float64(s.store.Count()))
	}
}

func estimatePromptTokens(turns []conversation.Turn) int {
	texts := make([]string, 0, len(turns))
	for _, t := range turns {
		texts = append(texts, t.Content)
	}
	return observability.EstimateTokens(texts...)
}
