package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"tandem-api/internal/audit"
	"tandem-api/internal/http/client"
	"tandem-api/internal/observability/logger"

	"go.uber.org/zap"
)

// Recorder forwards audit events to an external HTTP sink (SIEM ingest,
// compliance archive). It implements audit.Recorder; like every recorder,
// a failed delivery is logged by the pipeline and never propagated to the
// request that produced the event.
//
// Requests are signed with an HMAC-SHA256 of the body so the receiver can
// verify origin without a shared session.
type Recorder struct {
	httpClient *http.Client
	url        string
	secret     []byte
}

func NewRecorder(url, secret string) *Recorder {
	return &Recorder{
		httpClient: client.NewExternalHTTPClient(), // Includes RequestIDTransport
		url:        url,
		secret:     []byte(secret),
	}
}

// Record implements audit.Recorder.
func (r *Recorder) Record(ctx context.Context, event audit.Event) error {
	log := logger.GetLogger(ctx)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tandem-Signature", r.sign(body))
	// X-Request-Id automatically added by RequestIDTransport from ctx

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("audit webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		log.Warn(ctx, "audit webhook returned non-ok status",
			logger.Module("webhook"),
			logger.Action("record"),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("unexpected status from audit webhook: %d", resp.StatusCode)
	}

	return nil
}

func (r *Recorder) sign(body []byte) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
