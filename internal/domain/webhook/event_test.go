package webhook

import (
	"testing"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLifecycle(t *testing.T) {
	e := NewEvent("wompi", "transaction.updated:trx-1:1700000000", []byte(`{}`))
	assert.Equal(t, StatusPending, e.Status())
	assert.False(t, e.SignatureValid())

	e.MarkValidated()
	assert.Equal(t, StatusValidated, e.Status())
	assert.True(t, e.SignatureValid())

	require.NoError(t, e.MarkProcessed())
	assert.Equal(t, StatusProcessed, e.Status())
	require.NotNil(t, e.ProcessedAt())
}

func TestEvent_CannotFinalizeTwice(t *testing.T) {
	e := NewEvent("paypal", "WH-1", []byte(`{}`))
	require.NoError(t, e.MarkIgnored("no matching payment"))

	err := e.MarkProcessed()
	require.Error(t, err)
	assert.True(t, domainerr.IsConflict(err))
	assert.Equal(t, StatusIgnored, e.Status())
}

func TestEvent_MarkFailedKeepsReason(t *testing.T) {
	e := NewEvent("wompi", "evt-2", []byte(`{}`))
	require.NoError(t, e.MarkFailed("signature mismatch"))
	assert.Equal(t, "signature mismatch", e.ErrorMessage())
}
