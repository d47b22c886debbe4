package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	appErr := FromError(fmt.Errorf("pq: connection refused"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
}

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Clone(ErrVersionConflict, "stale version"))
	appErr := FromError(wrapped)
	assert.Equal(t, "VERSION_CONFLICT", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "stale version", appErr.Message)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Clone(ErrForbidden, "record is locked")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestJSONHidesCauseAndStatus(t *testing.T) {
	err := Internal(fmt.Errorf("dial tcp 10.0.0.3:5432: timeout"), "failed to load record")
	raw, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"code":"INTERNAL_ERROR","message":"failed to load record"}`, string(raw))
}

func TestWithDetails(t *testing.T) {
	err := WithDetails(ErrVersionConflict, map[string]int{"current_version": 3})
	raw, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"code":"VERSION_CONFLICT","message":"record was modified by another request","details":{"current_version":3}}`, string(raw))
	assert.Nil(t, ErrVersionConflict.Details)
}
