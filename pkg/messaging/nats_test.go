package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	raw, err := encode([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), raw)

	str, err := encode("texto")
	require.NoError(t, err)
	assert.Equal(t, []byte("texto"), str)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	payload, err := encode(ReminderSentEvent{SaleID: "venta_001", Trigger: "pending", Mode: "simulation", SentAt: at})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "venta_001", decoded["venta_id"])
	assert.Equal(t, "pending", decoded["trigger"])

	_, err = encode(make(chan int))
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), SubjectAlertCreated, AlertCreatedEvent{SaleID: "x"}))
}
