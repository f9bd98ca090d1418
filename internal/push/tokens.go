package push

import (
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

// ActiveTokens returns the deliverable token strings in input order.
func ActiveTokens(tokens []model.DeviceToken, now time.Time) []string {
	var out []string
	for _, t := range tokens {
		if t.Deliverable(now) {
			out = append(out, t.Token)
		}
	}
	return out
}
