package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// errBadRequest marks malformed request bodies for status mapping.
var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) error {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	accountID, err := a.engine.CreateAccount(r.Context(), req.Handle, req.Password)
	if err != nil {
		return err
	}

	a.writeJSON(w, http.StatusCreated, map[string]string{"account_id": accountID})
	return nil
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	pair, err := a.engine.Login(r.Context(), req.Handle, req.Password)
	if err != nil {
		return err
	}

	a.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
	return nil
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		return err
	}

	a.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
	return nil
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := a.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) error {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return errBadRequest
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if err := a.engine.ChangePassword(r.Context(), id.AccountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *API) handleRevokeAll(w http.ResponseWriter, r *http.Request) error {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return errBadRequest
	}

	if err := a.engine.RevokeAllForAccount(r.Context(), id.AccountID); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *API) handleGenerateRecovery(w http.ResponseWriter, r *http.Request) error {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return errBadRequest
	}

	batch, err := a.engine.GenerateRecoveryCodes(r.Context(), id.AccountID)
	if err != nil {
		return err
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"codes":     batch.Codes,
		"issued_at": batch.IssuedAt,
	})
	return nil
}

type recoveryLoginRequest struct {
	Handle string `json:"handle"`
	Code   string `json:"code"`
}

func (a *API) handleRecoveryLogin(w http.ResponseWriter, r *http.Request) error {
	var req recoveryLoginRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	pair, err := a.engine.LoginWithRecoveryCode(r.Context(), req.Handle, req.Code)
	if err != nil {
		return err
	}

	a.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
	return nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Ping(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.MetricsSnapshot())
}
