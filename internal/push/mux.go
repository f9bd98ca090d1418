package push

import (
	"context"
	"errors"
	"maps"
	"strings"
)

// Mux routes web-push subscriptions (JSON tokens) to Web and every other
// token to Native. Either side may be nil, in which case its tokens fail.
type Mux struct {
	Web    Transport
	Native Transport
}

// IsWebSubscription reports whether token is a JSON web-push subscription.
func IsWebSubscription(token string) bool {
	return strings.HasPrefix(strings.TrimSpace(token), "{")
}

func (m *Mux) SendToDevices(ctx context.Context, tokens []string, msg Message, data map[string]string) (SendResult, error) {
	var web, native []string
	for _, token := range tokens {
		if IsWebSubscription(token) {
			web = append(web, token)
		} else {
			native = append(native, token)
		}
	}

	var result SendResult
	var errs []error
	route := func(t Transport, batch []string) {
		if len(batch) == 0 {
			return
		}
		if t == nil {
			for _, token := range batch {
				result.fail(token, errors.New("no transport for token"))
			}
			return
		}
		r, err := t.SendToDevices(ctx, batch, msg, data)
		if err != nil {
			errs = append(errs, err)
			for _, token := range batch {
				result.fail(token, err)
			}
			return
		}
		result.SuccessCount += r.SuccessCount
		result.FailureCount += r.FailureCount
		if len(r.TokenErrors) > 0 {
			if result.TokenErrors == nil {
				result.TokenErrors = make(map[string]error)
			}
			maps.Copy(result.TokenErrors, r.TokenErrors)
		}
	}
	route(m.Web, web)
	route(m.Native, native)

	// Only a total failure is a call error.
	if result.SuccessCount == 0 && len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}
