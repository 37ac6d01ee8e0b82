package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sentinel-bot/internal/events"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestNotifier_ContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := &captureSender{err: boom}
	ok := &captureSender{}
	n := NewNotifier(zaptest.NewLogger(t), failing, ok)

	err := n.Notify(context.Background(), Message{UserID: 1, Title: "t"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.count())
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "999").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), Message{UserID: 42, Title: "Hi", Body: "there"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Hi*\nthere", got["text"])

	require.NoError(t, s.Send(context.Background(), Message{Title: "ops"}))
	assert.Equal(t, "999", got["chat_id"])
}

func TestTelegramSender_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "").WithBaseURL(srv.URL)
	err := s.Send(context.Background(), Message{UserID: 1, Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	assert.ErrorIs(t, s.Send(context.Background(), Message{Title: "no chat"}), errNoChat)
}

func TestFormat(t *testing.T) {
	ref := events.PositionRef{PositionID: 3, UserID: 7, AssetMint: "So11111111111111111111111111111111111111112"}

	msg, ok := Format(events.PositionClosedEvent{
		BaseEvent:   events.NewBase(events.PositionClosed),
		PositionRef: ref,
		Reason:      "TAKE_PROFIT",
		PnLPercent:  30,
		Signature:   "SIM-1",
		Simulated:   true,
	})
	require.True(t, ok)
	assert.Equal(t, int64(7), msg.UserID)
	assert.Equal(t, "Position closed [SIM]", msg.Title)
	assert.Contains(t, msg.Body, "+30.00%")
	assert.Contains(t, msg.Body, "So11...1112")

	_, ok = Format(events.TriggerFiredEvent{BaseEvent: events.NewBase(events.TriggerFired), AutoSell: true})
	assert.False(t, ok)

	msg, ok = Format(events.ManualInterventionEvent{
		BaseEvent:   events.NewBase(events.ManualInterventionRequired),
		PositionRef: ref,
		Reason:      events.ReasonWalletLocked,
	})
	require.True(t, ok)
	assert.Contains(t, msg.Body, events.ReasonWalletLocked)
}

func TestSubscribe_DeliversFromBus(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t), 4)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	sink := &captureSender{}
	Subscribe(bus, NewNotifier(zaptest.NewLogger(t), sink))

	require.NoError(t, bus.Publish(events.SellFailedEvent{
		BaseEvent:   events.NewBase(events.SellFailed),
		PositionRef: events.PositionRef{UserID: 5, AssetMint: "mint"},
		Trigger:     "STOP_LOSS",
		Err:         errors.New("no route"),
	}))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Sell failed", sink.msgs[0].Title)
}
