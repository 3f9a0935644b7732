package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"subsai/config"
	"subsai/logger"
)

const tokenRefreshMargin = 5 * time.Minute

// OoonaConverter turns SRT into the OOONA JSON format through the OOONA
// conversion API. It implements subtitle.Converter.
type OoonaConverter struct {
	baseURL      string
	clientID     string
	clientSecret string
	apiKey       string
	apiName      string
	client       *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewOoonaConverter(cfg *config.Config, hc *http.Client) (*OoonaConverter, error) {
	if !cfg.OoonaEnabled() {
		return nil, errors.New("ooona credentials are incomplete")
	}
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &OoonaConverter{
		baseURL:      strings.TrimRight(cfg.OoonaBaseURL, "/"),
		clientID:     cfg.OoonaClientID,
		clientSecret: cfg.OoonaClientSecret,
		apiKey:       cfg.OoonaAPIKey,
		apiName:      cfg.OoonaAPIName,
		client:       hc,
		now:          time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// authenticate returns a cached token or fetches a new one.
func (o *OoonaConverter) authenticate(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" && o.now().Before(o.expiresAt) {
		return o.token, nil
	}

	form := url.Values{
		"grant_type":    {"secret"},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"secret":        {o.apiKey},
		"name":          {o.apiName},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("network error during authentication: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authentication failed: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("authentication failed: empty access token")
	}
	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if tr.ExpiresIn <= 0 {
		expiresIn = time.Hour
	}
	o.token = tr.AccessToken
	o.expiresAt = o.now().Add(expiresIn - tokenRefreshMargin)
	logger.Info("Authenticated with OOONA API")
	return o.token, nil
}

// Convert uploads srt for conversion. JSON replies are re-indented; anything
// else is returned as sent.
func (o *OoonaConverter) Convert(ctx context.Context, srt []byte) ([]byte, error) {
	token, err := o.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("", "subtitle.srt")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(srt); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/external/convert/srt/ooona", &buf)
	if err != nil {
		return nil, fmt.Errorf("create conversion request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read conversion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversion failed: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return body, nil
	}
	return pretty.Bytes(), nil
}
