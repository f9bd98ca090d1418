package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired marks a device token the provider no longer accepts.
var ErrExpired = errors.New("device token expired")

// Message is the visible part of a push notification.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendResult summarizes one SendToDevices call. TokenErrors holds the
// per-token failures; tokens wrapping ErrExpired should be deactivated.
type SendResult struct {
	SuccessCount int
	FailureCount int
	TokenErrors  map[string]error
}

func (r *SendResult) fail(token string, err error) {
	if r.TokenErrors == nil {
		r.TokenErrors = make(map[string]error)
	}
	r.TokenErrors[token] = err
	r.FailureCount++
}

// Expired returns the tokens the provider reported as expired.
func (r SendResult) Expired() []string {
	var out []string
	for token, err := range r.TokenErrors {
		if errors.Is(err, ErrExpired) {
			out = append(out, token)
		}
	}
	return out
}

// Transport sends one message to a set of device tokens. A returned error
// means the whole call failed; per-token failures are reported in SendResult.
type Transport interface {
	SendToDevices(ctx context.Context, tokens []string, msg Message, data map[string]string) (SendResult, error)
}

// Simulated accepts every token. It is used when no provider is configured.
type Simulated struct {
	logger *slog.Logger
}

func NewSimulated(logger *slog.Logger) *Simulated {
	return &Simulated{logger: logger.With("component", "push.simulated")}
}

func (s *Simulated) SendToDevices(_ context.Context, tokens []string, msg Message, _ map[string]string) (SendResult, error) {
	s.logger.Debug("simulated push", "tokens", len(tokens), "title", msg.Title)
	return SendResult{SuccessCount: len(tokens)}, nil
}

// WebPush delivers to browser subscriptions. Each token is the JSON form of
// a PushSubscription as produced by the browser.
type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
}

func NewWebPush(publicKey, privateKey, subscriber string) *WebPush {
	return &WebPush{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		ttl:        86400,
	}
}

// VAPIDPublicKey returns the key clients need to subscribe.
func (w *WebPush) VAPIDPublicKey() string {
	return w.publicKey
}

type webPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (w *WebPush) SendToDevices(ctx context.Context, tokens []string, msg Message, data map[string]string) (SendResult, error) {
	payload, err := json.Marshal(webPayload{Title: msg.Title, Body: msg.Body, Data: data})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	var result SendResult
	for _, token := range tokens {
		if err := w.send(ctx, token, payload); err != nil {
			result.fail(token, err)
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func (w *WebPush) send(ctx context.Context, token string, payload []byte) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		Subscriber:      w.subscriber,
		TTL:             w.ttl,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
