package alert

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
)

func TestNewEventID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewEventID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate event id %s", id)
		seen[id] = true
	}
}

func TestMailer_CapacityExceeded(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewMailer(SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		Sender: "lot@example.com", Password: "secret",
		Receiver: "authority@example.com",
	})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	ev := CapacityEvent{
		ID:       "ev-1",
		Count:    3,
		Max:      2,
		Identity: identity.FromPlate("AB12345"),
		Time:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.CapacityExceeded(context.Background(), ev))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "lot@example.com", gotFrom)
	assert.Equal(t, []string{"authority@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Parking Capacity Exceeded Alert")
	assert.Contains(t, body, "Maximum capacity : 2")
	assert.Contains(t, body, "Current vehicles : 3")
	assert.Contains(t, body, "AB12345")
}

func TestMailer_IllegalExit(t *testing.T) {
	var gotMsg []byte
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 587})
	m.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	ev := IllegalExitEvent{
		ID:       "ev-2",
		Identity: identity.FromTracker("9"),
		Time:     time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.IllegalExit(context.Background(), ev))
	assert.Contains(t, string(gotMsg), "Subject: Illegal Exit Alert")
	assert.Contains(t, string(gotMsg), "track:9")
}

func TestMailer_SendFailureSurfaced(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 587})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.IllegalExit(context.Background(), IllegalExitEvent{ID: "ev-3"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}

func TestNop(t *testing.T) {
	var a Alerter = Nop{}
	assert.NoError(t, a.CapacityExceeded(context.Background(), CapacityEvent{}))
	assert.NoError(t, a.IllegalExit(context.Background(), IllegalExitEvent{}))
}
