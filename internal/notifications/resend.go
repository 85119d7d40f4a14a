package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultResendBaseURL is the public Resend REST endpoint.
	DefaultResendBaseURL = "https://api.resend.com"

	resendEmailsPath        = "/emails"
	defaultResendTimeout    = 15 * time.Second
	maxProviderErrorBytes   = 1024
	maxProviderSuccessBytes = 64 * 1024
)

var (
	// ErrMissingAPIKey indicates the Resend API key was not provided.
	ErrMissingAPIKey = errors.New("notifications: resend api key is required")
	// ErrMissingRecipient indicates an outbound email without a recipient.
	ErrMissingRecipient = errors.New("notifications: recipient is required")
)

// OutboundEmail is the JSON body accepted by the Resend emails endpoint.
type OutboundEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

// ProviderError reports a non-success response from the email provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (providerError *ProviderError) Error() string {
	return fmt.Sprintf("resend failed: %d %s", providerError.StatusCode, providerError.Body)
}

// ResendConfig captures connection settings for the Resend API.
type ResendConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ResendClient delivers emails through the Resend REST API.
type ResendClient struct {
	logger     *zap.Logger
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewResendClient creates a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewResendClient(logger *zap.Logger, httpClient *http.Client, cfg ResendConfig) (*ResendClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultResendTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResendClient{
		logger:     logger,
		httpClient: httpClient,
		endpoint:   baseURL + resendEmailsPath,
		apiKey:     apiKey,
	}, nil
}

// SendEmail posts one email and returns the provider message id.
func (client *ResendClient) SendEmail(ctx context.Context, email OutboundEmail) (string, error) {
	if client == nil || client.httpClient == nil {
		return "", errors.New("notifications: resend client not initialized")
	}
	if len(email.To) == 0 {
		return "", ErrMissingRecipient
	}

	payload, encodeErr := json.Marshal(email)
	if encodeErr != nil {
		return "", fmt.Errorf("encode resend request: %w", encodeErr)
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(payload))
	if requestErr != nil {
		return "", fmt.Errorf("build resend request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+client.apiKey)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, sendErr := client.httpClient.Do(request)
	if sendErr != nil {
		client.logger.Warn("resend_send_failed", zap.Error(sendErr))
		return "", fmt.Errorf("send resend request: %w", sendErr)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		errorBody, _ := io.ReadAll(io.LimitReader(response.Body, maxProviderErrorBytes))
		providerErr := &ProviderError{
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(errorBody)),
		}
		client.logger.Warn("resend_send_failed_status", zap.Int("status", response.StatusCode), zap.Error(providerErr))
		return "", providerErr
	}

	var decoded sendEmailResponse
	if decodeErr := json.NewDecoder(io.LimitReader(response.Body, maxProviderSuccessBytes)).Decode(&decoded); decodeErr != nil {
		client.logger.Debug("resend_response_decode_failed", zap.Error(decodeErr))
		return "", nil
	}
	return decoded.ID, nil
}
