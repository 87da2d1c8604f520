package orders

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-commerce-inventory/internal/kafka"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ev := Envelope{
		EventID:       "ev-1",
		EventType:     EventStockChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC().Truncate(time.Second),
		Producer:      "shop-api",
		CorrelationID: "prod-42",
		Payload: kafkax.MustMarshal(StockChangedPayload{
			ProductID: "prod-42", Stock: 7, Reserved: 2, Available: 5,
		}),
	}

	var decoded Envelope
	require.NoError(t, json.Unmarshal(kafkax.MustMarshal(ev), &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, ev.EventType, decoded.EventType)

	payload, err := kafkax.UnwrapPayload[StockChangedPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, "prod-42", payload.ProductID)
	assert.Equal(t, 5, payload.Available)

	_, err = kafkax.UnwrapPayload[StockChangedPayload](json.RawMessage(`{"stock":"seven"}`))
	assert.Error(t, err)
}
