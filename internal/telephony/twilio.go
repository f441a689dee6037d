package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioAPIBase = "https://api.twilio.com/2010-04-01"

// maxTwilioResponse caps how much of a REST response body is read.
const maxTwilioResponse = 1 << 20

// TwilioConfig holds credentials and the caller ID used for outbound calls.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// APIBase overrides the REST root, mainly for tests.
	APIBase string
	Timeout time.Duration
}

// TwilioProvider originates calls over the Twilio REST API.
// A partially configured provider is still constructed; Ready reports what is missing
// so misconfiguration surfaces when a call is placed rather than at startup.
type TwilioProvider struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewTwilioProvider(cfg TwilioConfig) *TwilioProvider {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultTwilioAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwilioProvider{
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       strings.TrimSpace(cfg.FromNumber),
		baseURL:    fmt.Sprintf("%s/Accounts/%s", base, url.PathEscape(strings.TrimSpace(cfg.AccountSID))),
		client:     &http.Client{Timeout: timeout},
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Ready() error {
	var missing []string
	if p.accountSID == "" {
		missing = append(missing, "account sid")
	}
	if p.authToken == "" {
		missing = append(missing, "auth token")
	}
	if p.from == "" {
		missing = append(missing, "from number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("twilio: not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// PlaceCall starts an outbound call that fetches its instructions from the voice callback.
func (p *TwilioProvider) PlaceCall(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	if err := p.Ready(); err != nil {
		return OriginateResult{}, err
	}
	if strings.TrimSpace(req.To) == "" {
		return OriginateResult{}, errors.New("twilio: destination number is required")
	}
	if req.Callbacks.Voice == "" {
		return OriginateResult{}, errors.New("twilio: voice callback URL is required")
	}

	params := url.Values{
		"To":   {req.To},
		"From": {p.from},
		"Url":  {req.Callbacks.Voice},
	}
	if req.Callbacks.Status != "" {
		params["StatusCallback"] = []string{req.Callbacks.Status}
		params["StatusCallbackMethod"] = []string{"POST"}
		params["StatusCallbackEvent"] = []string{"initiated", "ringing", "answered", "completed"}
	}
	if req.Record {
		params.Set("Record", "true")
		if req.Callbacks.Recording != "" {
			params.Set("RecordingStatusCallback", req.Callbacks.Recording)
			params.Set("RecordingStatusCallbackMethod", "POST")
		}
	}
	if req.Transcribe {
		params.Set("Transcribe", "true")
		if req.Callbacks.Transcription != "" {
			params.Set("TranscribeCallback", req.Callbacks.Transcription)
		}
	}

	body, err := p.apiRequest(ctx, "/Calls.json", params)
	if err != nil {
		return OriginateResult{}, fmt.Errorf("twilio: failed to initiate call: %w", err)
	}

	var out struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return OriginateResult{}, fmt.Errorf("twilio: failed to parse response: %w", err)
	}
	if out.SID == "" {
		return OriginateResult{}, errors.New("twilio: response missing call sid")
	}
	return OriginateResult{ProviderCallID: out.SID, Status: out.Status}, nil
}

func (p *TwilioProvider) apiRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTwilioResponse+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxTwilioResponse {
		return nil, fmt.Errorf("API response too large (%d bytes)", len(body))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
