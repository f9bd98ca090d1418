package errorx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsIdentity(t *testing.T) {
	err := Wrap(ErrCapacityExceeded, "event %d holds %d", 7, 2)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NotErrorIs(t, err, ErrAlreadyRegistered)
	require.Equal(t, "event is at capacity: event 7 holds 2", err.Error())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindPolicy, KindOf(fmt.Errorf("register: %w", ErrRegistrationClosed)))
	require.Equal(t, KindNotFound, KindOf(ErrEventNotFound))
	require.Equal(t, KindValidation, KindOf(Validation("rating must be 1-5")))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
