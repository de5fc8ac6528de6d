package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"wc3-bridge/internal/constants"
	"wc3-bridge/internal/domain"
	"wc3-bridge/internal/profile"

	"github.com/rs/zerolog"
)

type ProfileRequester interface {
	RequestProfile(ctx context.Context, identity string) (domain.Profile, error)
}

type ProfileService struct {
	bridge  ProfileRequester
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProfileService bounds each request by the resolver timeout plus slack,
// so callers normally see the resolver's fallback rather than a deadline.
func NewProfileService(bridge ProfileRequester, resolverTimeout time.Duration, logger zerolog.Logger) *ProfileService {
	return &ProfileService{
		bridge:  bridge,
		timeout: resolverTimeout + constants.ProfileRequestSlack,
		logger:  logger,
	}
}

func (s *ProfileService) GetProfile(ctx context.Context, battleTag string) (domain.Profile, error) {
	battleTag = strings.TrimSpace(battleTag)
	if battleTag == "" {
		return domain.Profile{}, fmt.Errorf("%w: battle tag required", profile.ErrInvalidIdentity)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	p, err := s.bridge.RequestProfile(ctx, battleTag)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", battleTag).Msg("profile request failed")
		return domain.Profile{}, err
	}

	s.logger.Info().
		Str("identity", battleTag).
		Bool("fallback", p.Fallback).
		Dur("took", time.Since(start)).
		Msg("profile served")
	return p, nil
}
