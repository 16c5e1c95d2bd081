package identity

import (
	"context"

	"go.uber.org/zap"
)

// ValidateAccess checks an access token's signature and claims and
// returns the identity it carries. Every failure mode collapses to
// ErrTokenInvalid; the underlying cause is only logged.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessIdentity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		e.metrics.tokenRejected.Add(1)
		e.log.Debug("access token rejected", zap.Error(err))
		return nil, ErrTokenInvalid
	}

	return &AccessIdentity{
		AccountID: claims.Subject,
		SessionID: claims.SessionID,
		Scope:     claims.Scope,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
