// Package auth is the outbound client for the external auth subsystem, used
// only for the re-authentication check before destructive actions.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/spf13/viper"
)

type Reauthenticator interface {
	CheckPassword(ctx context.Context, actorID, password string) (bool, error)
}

type HttpAuth struct {
	Cfg *viper.Viper

	client  *http.Client
	baseURL string
}

func (a *HttpAuth) Init() {
	a.baseURL = a.Cfg.GetString("auth.base_url")
	a.client = &http.Client{
		Timeout: a.Cfg.GetDuration("auth.timeout"),
	}
}

func (a *HttpAuth) CheckPassword(ctx context.Context, actorID, password string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"actor_id": actorID,
		"password": password,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/check-password", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}

	if resp.StatusCode != http.StatusOK {
		return false, &httpStatusError{code: resp.StatusCode}
	}

	var payload struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, err
	}

	return payload.Valid, nil
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.code)
}
