package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeInvalidTransition, http.StatusBadRequest},
		{CodeInvitationInvalid, http.StatusBadRequest},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeOutOfOrder, http.StatusBadRequest},
		{CodeAlreadyExists, http.StatusBadRequest},
		{CodeExternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.code), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.status, StatusOf(tc.code))
		})
	}
}

func TestInvalidTransitionDetail(t *testing.T) {
	t.Parallel()

	err := InvalidTransition("DRAFT", "PUBLISHED")
	require.Equal(t, CodeInvalidTransition, err.Code)
	require.Equal(t, "DRAFT", err.Detail["current_state"])
	require.Equal(t, "PUBLISHED", err.Detail["requested_state"])
}

func TestCodeOfWrappedError(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("saving contract: %w", NotFound("contract %s", "abc"))
	require.Equal(t, CodeNotFound, CodeOf(wrapped))

	require.Equal(t, CodeExternal, CodeOf(fmt.Errorf("boom")))
}

func TestFrom(t *testing.T) {
	t.Parallel()

	body := From(RateLimited(42))
	require.Equal(t, CodeRateLimited, body.Code)
	detail, ok := body.Detail.(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 42, detail["retry_after"])

	plain := From(fmt.Errorf("db down"))
	require.Equal(t, CodeExternal, plain.Code)
	require.Equal(t, "db down", plain.Message)
}
