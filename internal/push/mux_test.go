package push

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	calls   [][]string
	result  func(tokens []string) SendResult
	failErr error
}

func (r *recordingTransport) SendToDevices(_ context.Context, tokens []string, _ Message, _ map[string]string) (SendResult, error) {
	r.calls = append(r.calls, append([]string(nil), tokens...))
	if r.failErr != nil {
		return SendResult{}, r.failErr
	}
	if r.result != nil {
		return r.result(tokens), nil
	}
	return SendResult{SuccessCount: len(tokens)}, nil
}

func TestMuxRoutesByTokenShape(t *testing.T) {
	web := &recordingTransport{}
	native := &recordingTransport{}
	m := &Mux{Web: web, Native: native}

	sub := `{"endpoint":"https://push.example/1","keys":{"p256dh":"k","auth":"a"}}`
	r, err := m.SendToDevices(context.Background(), []string{"ios-1", sub, "android-1"}, Message{}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, r.SuccessCount)
	require.Equal(t, [][]string{{sub}}, web.calls)
	require.Equal(t, [][]string{{"ios-1", "android-1"}}, native.calls)
}

func TestMuxPartialFailure(t *testing.T) {
	web := &recordingTransport{failErr: errors.New("vapid misconfigured")}
	native := &recordingTransport{}
	m := &Mux{Web: web, Native: native}

	r, err := m.SendToDevices(context.Background(), []string{`{"endpoint":"x"}`, "ios-1"}, Message{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.SuccessCount)
	require.Equal(t, 1, r.FailureCount)
}

func TestMuxTotalFailure(t *testing.T) {
	m := &Mux{Native: &recordingTransport{failErr: errors.New("gateway down")}}

	r, err := m.SendToDevices(context.Background(), []string{"ios-1", `{"endpoint":"x"}`}, Message{}, nil)
	require.Error(t, err)
	require.Equal(t, 0, r.SuccessCount)
	require.Equal(t, 2, r.FailureCount)
}
