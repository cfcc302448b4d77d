package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

type passwordGrantResponse struct {
	AccessToken string `json:"access_token"`
}

// fetchAccessToken signs in with the Supabase password grant.
func fetchAccessToken(ctx context.Context, projectURL, apiKey, email, password string, timeout time.Duration) (string, error) {
	if projectURL == "" {
		return "", errors.New("project URL required to fetch token")
	}
	endpoint := strings.TrimRight(projectURL, "/") + "/auth/v1/token?grant_type=password"

	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", apiKey)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("supabase auth returned %s", resp.Status)
	}
	var pg passwordGrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		return "", err
	}
	if pg.AccessToken == "" {
		return "", errors.New("response did not include access_token")
	}
	return pg.AccessToken, nil
}

func deriveProjectURL(jwks string) string {
	if jwks == "" {
		return ""
	}
	u, err := url.Parse(jwks)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
