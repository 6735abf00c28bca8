package sleep

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/valora-sleep/internal/adapter/oauth"
	"github.com/smallbiznis/valora-sleep/internal/adapter/whoop"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
	"github.com/smallbiznis/valora-sleep/internal/normalize"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

// Service imports sleep data for the connected user.
type Service interface {
	FetchSleep(ctx context.Context, tokens *session.TokenStore, query domainsleep.SleepQuery) (domainsleep.SleepResponsePage, error)
	LatestSnapshot(ctx context.Context, tokens *session.TokenStore) (domainsleep.SleepSnapshot, error)
}

// snapshotPageSize is how many records LatestSnapshot inspects for a scored one.
const snapshotPageSize = 5

type sleepService struct {
	data            whoop.DataClient
	provider        oauthadapter.ProviderClient
	refreshOnExpiry bool
	logger          *zap.Logger
	tracer          trace.Tracer
}

// NewService wires the sleep import service.
func NewService(data whoop.DataClient, provider oauthadapter.ProviderClient, refreshOnExpiry bool, logger *zap.Logger) Service {
	return &sleepService{
		data:            data,
		provider:        provider,
		refreshOnExpiry: refreshOnExpiry,
		logger:          logger,
		tracer:          otel.Tracer("github.com/smallbiznis/valora-sleep/internal/service/sleep"),
	}
}

func (s *sleepService) FetchSleep(ctx context.Context, tokens *session.TokenStore, query domainsleep.SleepQuery) (domainsleep.SleepResponsePage, error) {
	ctx, span := s.tracer.Start(ctx, "SleepService.FetchSleep")
	defer span.End()
	span.SetAttributes(attribute.Int("sleep.limit", query.Limit))

	page, err := s.fetch(ctx, tokens, query)
	if err != nil {
		span.RecordError(err)
		return domainsleep.SleepResponsePage{}, err
	}
	span.SetAttributes(attribute.Int("sleep.records", len(page.Records)))
	return page, nil
}

func (s *sleepService) LatestSnapshot(ctx context.Context, tokens *session.TokenStore) (domainsleep.SleepSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "SleepService.LatestSnapshot")
	defer span.End()

	page, err := s.fetch(ctx, tokens, domainsleep.SleepQuery{Limit: snapshotPageSize})
	if err != nil {
		span.RecordError(err)
		return domainsleep.SleepSnapshot{}, err
	}
	record, ok := normalize.Latest(page.Records)
	if !ok {
		return domainsleep.SleepSnapshot{}, domainsleep.ErrNoSnapshot
	}
	span.SetAttributes(attribute.String("sleep.record_id", string(record.ID)))
	return normalize.Snapshot(record), nil
}

// fetch calls the data API once, and on a 401 refreshes the access token and
// retries exactly once.
func (s *sleepService) fetch(ctx context.Context, tokens *session.TokenStore, query domainsleep.SleepQuery) (domainsleep.SleepResponsePage, error) {
	access := tokens.AccessToken()
	if access == "" {
		return domainsleep.SleepResponsePage{}, domainsleep.ErrUnauthorized
	}

	page, err := s.data.FetchSleepRecords(ctx, access, query)
	if err == nil || !errors.Is(err, domainsleep.ErrUnauthorized) {
		return page, err
	}

	refresh := tokens.RefreshToken()
	if !s.refreshOnExpiry || refresh == "" {
		return domainsleep.SleepResponsePage{}, err
	}

	s.log().Info("access token rejected, refreshing")
	renewed, rerr := s.provider.Refresh(ctx, refresh)
	if rerr != nil {
		s.log().Warn("token refresh failed", zap.Error(rerr))
		// Only a rejected grant means the session is gone; an unreachable
		// token endpoint stays a transport failure.
		var authErr *domainoauth.ProviderAuthError
		if errors.As(rerr, &authErr) {
			return domainsleep.SleepResponsePage{}, fmt.Errorf("%w: refresh failed: %v", domainsleep.ErrUnauthorized, rerr)
		}
		return domainsleep.SleepResponsePage{}, fmt.Errorf("refresh token: %w", rerr)
	}
	if _, serr := tokens.SaveTokens(renewed); serr != nil {
		return domainsleep.SleepResponsePage{}, fmt.Errorf("persist refreshed tokens: %w", serr)
	}
	return s.data.FetchSleepRecords(ctx, renewed.AccessToken, query)
}

func (s *sleepService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
