package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuspulse/campuspulse/internal/config"
	"github.com/campuspulse/campuspulse/internal/push"
)

func TestBuildTransport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub, priv, err := push.GenerateVAPIDKeys()
	require.NoError(t, err)

	base := config.PushConfig{
		WebPush: config.WebPushConfig{PublicKey: pub, PrivateKey: priv, Subscriber: "mailto:ops@campus.test"},
		Gateway: config.GatewayConfig{URL: "https://push.campus.test/send"},
	}

	tests := []struct {
		transport string
		check     func(t *testing.T, tr push.Transport, key string)
	}{
		{config.TransportSimulated, func(t *testing.T, tr push.Transport, key string) {
			require.IsType(t, &push.Simulated{}, tr)
			require.Empty(t, key)
		}},
		{config.TransportWebPush, func(t *testing.T, tr push.Transport, key string) {
			require.IsType(t, &push.WebPush{}, tr)
			require.Equal(t, pub, key)
		}},
		{config.TransportGateway, func(t *testing.T, tr push.Transport, key string) {
			require.IsType(t, &push.Gateway{}, tr)
			require.Empty(t, key)
		}},
		{config.TransportMux, func(t *testing.T, tr push.Transport, key string) {
			require.IsType(t, &push.Mux{}, tr)
			require.Equal(t, pub, key)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := base
			cfg.Transport = tt.transport
			tr, key := buildTransport(cfg, logger)
			tt.check(t, tr, key)
		})
	}
}
