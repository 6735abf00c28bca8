package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/valora-sleep/internal/adapter/oauth"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	"github.com/smallbiznis/valora-sleep/internal/repository"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

// OAuthService drives the provider connection: consent URL, callback, disconnect.
type OAuthService interface {
	StartAuthorization(ctx context.Context, tokens *session.TokenStore) (*StartAuthorizationOutput, error)
	HandleCallback(ctx context.Context, tokens *session.TokenStore, in OAuthCallbackInput) (*CallbackResult, error)
	Disconnect(ctx context.Context, tokens *session.TokenStore)
}

// StartAuthorizationOutput returns the prepared authorization URL.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// OAuthCallbackInput captures callback query parameters.
type OAuthCallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult is what a successful callback leaves behind.
type CallbackResult struct {
	Session    domainoauth.AuthSession
	RedirectTo string
}

// Phase names the callback state machine's steps.
type Phase string

const (
	PhaseAwaitingRedirect Phase = "AWAITING_REDIRECT"
	PhaseValidating       Phase = "VALIDATING"
	PhaseExchanging       Phase = "EXCHANGING"
	PhasePersisting       Phase = "PERSISTING"
	PhaseDone             Phase = "DONE"
	PhaseFailed           Phase = "FAILED"
)

// Options tune the orchestrator.
type Options struct {
	StateTTL         time.Duration
	PostAuthRedirect string
}

type oauthService struct {
	providerClient oauthadapter.ProviderClient
	ledger         repository.StateLedger
	opts           Options
	logger         *zap.Logger
	tracer         trace.Tracer
}

// NewOAuthService wires the OAuth service implementation. ledger may be nil,
// in which case only the state cookie guards the callback.
func NewOAuthService(
	providerClient oauthadapter.ProviderClient,
	ledger repository.StateLedger,
	opts Options,
	logger *zap.Logger,
) OAuthService {
	if opts.StateTTL <= 0 {
		opts.StateTTL = 10 * time.Minute
	}
	if strings.TrimSpace(opts.PostAuthRedirect) == "" {
		opts.PostAuthRedirect = "/#whoop"
	}
	return &oauthService{
		providerClient: providerClient,
		ledger:         ledger,
		opts:           opts,
		logger:         logger,
		tracer:         otel.Tracer("github.com/smallbiznis/valora-sleep/internal/service/auth"),
	}
}

func (s *oauthService) StartAuthorization(ctx context.Context, tokens *session.TokenStore) (*StartAuthorizationOutput, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.StartAuthorization")
	defer span.End()

	authURL, state, err := s.providerClient.AuthorizationURL()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build authorization url: %w", err)
	}
	if err := tokens.SaveState(state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist state: %w", err)
	}
	if s.ledger != nil {
		if err := s.ledger.Remember(ctx, state, s.opts.StateTTL); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("remember state: %w", err)
		}
	}
	s.transition(PhaseAwaitingRedirect)

	return &StartAuthorizationOutput{AuthorizationURL: authURL, State: state}, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, tokens *session.TokenStore, in OAuthCallbackInput) (*CallbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.HandleCallback")
	defer span.End()

	fail := func(err error) (*CallbackResult, error) {
		span.RecordError(err)
		span.SetAttributes(attribute.String("oauth.phase", string(PhaseFailed)))
		s.transition(PhaseFailed, zap.Error(err))
		return nil, err
	}

	s.transition(PhaseValidating)
	if strings.TrimSpace(in.Error) != "" {
		return fail(&domainoauth.AuthorizationDeniedError{Code: in.Error, Description: in.ErrorDescription})
	}
	if err := s.validateState(ctx, tokens, in.State); err != nil {
		return fail(err)
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return fail(domainoauth.ErrMissingCode)
	}

	s.transition(PhaseExchanging)
	tokenSet, err := s.providerClient.ExchangeCode(ctx, code)
	if err != nil {
		return fail(fmt.Errorf("exchange code: %w", err))
	}
	if strings.TrimSpace(tokenSet.AccessToken) == "" {
		return fail(&domainoauth.ProviderAuthError{Description: "token response carried no access_token"})
	}

	s.transition(PhasePersisting)
	sess, err := tokens.SaveTokens(tokenSet)
	if err != nil {
		return fail(fmt.Errorf("persist tokens: %w", err))
	}
	tokens.ClearState()

	s.transition(PhaseDone, zap.Bool("refresh_token_issued", tokenSet.RefreshToken != ""))
	return &CallbackResult{Session: sess, RedirectTo: s.opts.PostAuthRedirect}, nil
}

// validateState compares the callback state with the stored one. The stored
// copy stays in place until the connection is persisted.
func (s *oauthService) validateState(ctx context.Context, tokens *session.TokenStore, incoming string) error {
	stored := tokens.State()
	if stored == "" || incoming == "" {
		return domainoauth.ErrInvalidState
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(incoming)) != 1 {
		return domainoauth.ErrInvalidState
	}
	if s.ledger == nil {
		return nil
	}
	ok, err := s.ledger.Consume(ctx, incoming)
	if err != nil {
		return fmt.Errorf("consume state: %w", err)
	}
	if !ok {
		return domainoauth.ErrInvalidState
	}
	return nil
}

func (s *oauthService) Disconnect(_ context.Context, tokens *session.TokenStore) {
	tokens.Clear()
	s.log().Info("provider session cleared")
}

func (s *oauthService) transition(phase Phase, fields ...zap.Field) {
	s.log().Debug("oauth callback phase", append([]zap.Field{zap.String("phase", string(phase))}, fields...)...)
}

func (s *oauthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
