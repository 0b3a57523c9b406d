package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/httpclient"
)

// Mailer sends transactional email through the hosted email API.
type Mailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func NewMailer(baseURL, apiKey, from string, httpClient *http.Client) *Mailer {
	return &Mailer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
		httpClient: httpClient,
	}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(emailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	var resp *http.Response
	err = httpclient.Retry(ctx, 3, 500*time.Millisecond, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		var doErr error
		resp, doErr = m.httpClient.Do(req)
		if doErr != nil && httpclient.IsRetriable(doErr) {
			return doErr
		}
		return doErr
	})
	if err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	logger.Log.WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
	}).Info("Email sent")
	return nil
}
