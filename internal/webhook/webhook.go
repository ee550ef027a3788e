package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// EventValidated es el evento enviado después de cada validación
const EventValidated = "submission.validated"

// Headers del webhook
const (
	HeaderEvent        = "X-Grader-Event"
	HeaderValidationID = "X-Grader-Validation-Id"
	HeaderSignature    = "X-Grader-Signature"
)

// Notifier envía webhooks con el resultado de las validaciones
type Notifier struct {
	url        string
	client     *http.Client
	timeout    time.Duration
	retries    int
	hmacSecret string
	backoff    time.Duration
}

// Payload es el cuerpo del webhook
type Payload struct {
	Event        string         `json:"event"`
	ValidationID string         `json:"validation_id"`
	Competition  string         `json:"competition"`
	FileName     string         `json:"file_name,omitempty"`
	Verdict      models.Verdict `json:"verdict"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Result contiene el resultado de un envío
type Result struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        error
	Attempt      int
}

// NewNotifier crea un notifier; devuelve nil si no hay URL configurada
func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if cfg.WebhookURL == "" {
		return nil, nil
	}
	if err := ValidateURL(cfg.WebhookURL); err != nil {
		return nil, err
	}

	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.WebhookRetries
	if retries < 0 {
		retries = 0
	}

	return &Notifier{
		url:        cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		retries:    retries,
		hmacSecret: cfg.WebhookSecret,
		backoff:    time.Second,
	}, nil
}

// ValidateURL valida que la URL del webhook sea http(s) y tenga host
func ValidateURL(webhookURL string) error {
	parsedURL, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	// Solo permitir HTTP y HTTPS
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}

	return nil
}

// Sign genera una firma HMAC-SHA256 del payload
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Send envía el webhook con reintentos
func (n *Notifier) Send(ctx context.Context, payload Payload) *Result {
	result := &Result{}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal webhook: %w", err)
		return result
	}

	var lastErr error
	for attempt := 1; attempt <= n.retries+1; attempt++ {
		result.Attempt = attempt

		if attempt > 1 {
			backoff := n.backoff * time.Duration(attempt-1)
			log.Printf("Webhook retry %d/%d for validation %s (backoff: %v)",
				attempt-1, n.retries, payload.ValidationID, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				result.Error = ctx.Err()
				return result
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(jsonData))
		if err != nil {
			lastErr = err
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Grading-Server-Webhook/1.0")
		req.Header.Set(HeaderEvent, payload.Event)
		req.Header.Set(HeaderValidationID, payload.ValidationID)
		if n.hmacSecret != "" {
			req.Header.Set(HeaderSignature, Sign(n.hmacSecret, jsonData))
		}

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("Webhook error (attempt %d): %v", attempt, err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*10)) // Max 10KB
		resp.Body.Close()

		result.StatusCode = resp.StatusCode
		result.ResponseBody = string(bodyBytes)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			result.Success = true
			log.Printf("✅ Webhook delivered to %s (validation: %s, status: %d)",
				n.url, payload.ValidationID, resp.StatusCode)
			return result
		}

		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		log.Printf("⚠️  Webhook attempt %d failed: status %d", attempt, resp.StatusCode)
	}

	result.Error = fmt.Errorf("failed after %d attempts: %w", n.retries+1, lastErr)
	return result
}

// SendAsync envía el webhook en una goroutine; done (opcional) recibe el resultado
func (n *Notifier) SendAsync(payload Payload, done func(*Result)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout*time.Duration(n.retries+2))
		defer cancel()

		result := n.Send(ctx, payload)
		if result.Error != nil {
			log.Printf("❌ Webhook failed for validation %s: %v", payload.ValidationID, result.Error)
		}
		if done != nil {
			done(result)
		}
	}()
}
