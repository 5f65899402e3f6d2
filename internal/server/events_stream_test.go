package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/givevault/internal/events"
)

// receivedMessage mirrors streamMessage with raw data on the client side
type receivedMessage struct {
	Type   string          `json:"type"`
	Module string          `json:"module"`
	Data   json.RawMessage `json:"data"`
}

func TestParseEventTypes(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   []events.EventType
	}{
		{"empty selects all", "", events.AllEventTypes},
		{"single", "VAULT_DEPOSIT", []events.EventType{events.VaultDeposit}},
		{"case and spaces", " vault_harvest , EMERGENCY_PAUSED", []events.EventType{events.VaultHarvest, events.EmergencyPaused}},
		{"unknown dropped", "PRICE_UPDATED", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEventTypes(tt.filter))
		})
	}
}

func depositData() *events.VaultDepositData {
	return &events.VaultDepositData{
		VaultID:  "gv-test",
		Caller:   "alice",
		Receiver: "alice",
		Assets:   sdkmath.NewInt(1),
		Shares:   sdkmath.NewInt(1),
		Invested: sdkmath.ZeroInt(),
	}
}

func TestSubscription_CloseUnsubscribes(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	sub := subscribe(bus, []events.EventType{events.VaultDeposit}, zerolog.Nop())
	manager.EmitTyped("vault", depositData())
	require.Len(t, sub.C, 1)

	sub.Close()
	manager.EmitTyped("vault", depositData())
	assert.Len(t, sub.C, 1)
}

func TestEventsStreamHandler_ForwardsFilteredEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	srv := httptest.NewServer(NewEventsStreamHandler(bus, zerolog.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?types=VAULT_HARVEST", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() receivedMessage {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var msg receivedMessage
				require.NoError(t, json.Unmarshal([]byte(data), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", next().Type)

	// Filtered out, then forwarded
	manager.EmitTyped("vault", depositData())
	manager.EmitTyped("vault", &events.VaultHarvestData{VaultID: "gv-test", Profit: sdkmath.NewInt(5), Loss: sdkmath.ZeroInt(), Distributed: sdkmath.NewInt(5)})

	msg := next()
	assert.Equal(t, string(events.VaultHarvest), msg.Type)
	assert.Equal(t, "vault", msg.Module)
}

func TestEventsStreamHandler_RejectsUnknownTypes(t *testing.T) {
	h := NewEventsStreamHandler(events.NewBus(zerolog.Nop()), zerolog.Nop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?types=NOPE", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsSocketHandler_ForwardsEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	srv := httptest.NewServer(NewEventsSocketHandler(bus, zerolog.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?types=EMERGENCY_PAUSED", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the handshake; retry until delivered
	delivered := make(chan receivedMessage, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg receivedMessage
		if json.Unmarshal(data, &msg) == nil {
			delivered <- msg
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-delivered:
			assert.Equal(t, string(events.EmergencyPaused), msg.Type)
			return
		case <-ticker.C:
			manager.EmitTyped("vault", &events.EmergencyPausedData{VaultID: "gv-test", Recovered: sdkmath.ZeroInt()})
		case <-ctx.Done():
			t.Fatal("no event received over websocket")
		}
	}
}
