package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cardwatch/scard"
)

func TestEventMessage(t *testing.T) {
	at := time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)

	topic, payload, err := eventMessage("lab", scard.Event{
		Kind:   scard.CardInserted,
		Reader: "Gemalto PC Twin Reader",
		State:  scard.StatePresent | scard.StateInUse,
		ATR:    []byte{0x3b, 0x8f, 0x80},
	}, at)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "lab/event/card-inserted", topic)

	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Gemalto PC Twin Reader", p.Reader)
	assert.Equal(t, "present|inuse", p.State)
	assert.Equal(t, "3b8f80", p.ATR)
	assert.Equal(t, "2024-03-09T12:30:00Z", p.At)
	assert.Empty(t, p.Error)
}

func TestEventMessageError(t *testing.T) {
	topic, payload, err := eventMessage("cardwatch", scard.Event{
		Kind: scard.MonitorError,
		Err:  scard.ErrNoService,
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "cardwatch/event/error", topic)

	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "pc/sc service not running", p.Error)
	assert.Empty(t, p.Reader)
	assert.Empty(t, p.ATR)
}

func TestDisabledClientIsNoop(t *testing.T) {
	connected := false
	c := New(Config{Disabled: true, Host: "broker.example.com"}, Handlers{
		OnConnect: func() { connected = true },
	})

	assert.NoError(t, c.Connect())
	assert.True(t, connected)
	assert.NoError(t, c.PublishEvent(scard.Event{Kind: scard.CardInserted, Reader: "r"}))
	c.Close()
}
