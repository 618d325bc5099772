/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/whopays/outcome"
	"github.com/Seednode/whopays/session"
)

// wireMessage decodes either server message type.
type wireMessage struct {
	Type        string      `json:"type"`
	Names       []string    `json:"names"`
	Mode        string      `json:"mode"`
	SplitError  string      `json:"split_error"`
	Amount      string      `json:"amount"`
	Loading     bool        `json:"loading"`
	Confetti    bool        `json:"confetti"`
	CanCompute  bool        `json:"can_compute"`
	Result      *ResultView `json:"result"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
}

func dialParty(t *testing.T, baseURL, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/party/" + id + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	t.Cleanup(func() { _ = conn.Close() })

	first := readMessage(t, conn)
	require.Equal(t, "state", first.Type)

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

// readUntil skips messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireMessage) bool) wireMessage {
	t.Helper()

	for range 20 {
		msg := readMessage(t, conn)
		if match(msg) {
			return msg
		}
	}

	t.Fatal("expected message never arrived")

	return wireMessage{}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

func addNames(t *testing.T, conn *websocket.Conn, names ...string) {
	t.Helper()

	for _, name := range names {
		send(t, conn, ClientMessage{Type: "add_name", Name: name})
		readUntil(t, conn, func(m wireMessage) bool {
			return m.Type == "state" && len(m.Names) > 0 && m.Names[len(m.Names)-1] == name
		})
	}
}

func TestPartyRoundTrip(t *testing.T) {
	srv, pm := newTestServer(t, testConfig())
	conn := dialParty(t, srv.URL, "round001")

	addNames(t, conn, "Ana", "Bo")

	send(t, conn, ClientMessage{Type: "set_amount", Text: "200"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Amount == "200" })

	send(t, conn, ClientMessage{Type: "compute"})

	loading := readUntil(t, conn, func(m wireMessage) bool { return m.Loading })
	assert.Nil(t, loading.Result)
	assert.False(t, loading.Confetti)

	revealed := readUntil(t, conn, func(m wireMessage) bool { return m.Result != nil })
	assert.False(t, revealed.Loading)
	assert.True(t, revealed.Confetti)
	assert.Equal(t, "one-pays", revealed.Result.Mode)
	assert.NotEqual(t, uuid.Nil.String(), revealed.Result.ID)
	assert.Equal(t, []string{"Ana"}, revealed.Result.Selected)
	assert.Contains(t, revealed.Result.Message, "RIP Ana")
	assert.Contains(t, revealed.Result.Message, "₹200")
	assert.True(t, strings.HasPrefix(revealed.Result.Share, "Who Pays Result: "))
	assert.NotContains(t, revealed.Result.Share, "\n")

	calm := readUntil(t, conn, func(m wireMessage) bool { return !m.Confetti })
	require.NotNil(t, calm.Result)
	assert.Equal(t, revealed.Result.ID, calm.Result.ID)

	party, ok := pm.lookup("round001")
	require.True(t, ok)
	result, ok := party.Result()
	require.True(t, ok)
	assert.Equal(t, revealed.Result.Message, result.Message)

	resp, _ := get(t, srv.URL+"/party/round001/result.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestPartySharesStateBetweenClients(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	alice := dialParty(t, srv.URL, "shared01")
	bob := dialParty(t, srv.URL, "shared01")

	send(t, alice, ClientMessage{Type: "add_name", Name: "Ana"})

	msg := readUntil(t, bob, func(m wireMessage) bool { return m.Type == "state" })
	assert.Equal(t, []string{"Ana"}, msg.Names)
}

func TestPartyNoticeOnlyReachesActor(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	alice := dialParty(t, srv.URL, "notice01")
	bob := dialParty(t, srv.URL, "notice01")

	addNames(t, alice, "Ana")
	send(t, alice, ClientMessage{Type: "add_name", Name: " Ana "})

	notice := readMessage(t, alice)
	assert.Equal(t, "notice", notice.Type)
	if notice.Type == "notice" {
		assert.Equal(t, "Already added!", notice.Title)
	}

	// Bob sees both broadcasts and nothing else.
	for range 2 {
		msg := readMessage(t, bob)
		assert.Equal(t, "state", msg.Type)
		assert.Equal(t, []string{"Ana"}, msg.Names)
	}
}

func TestPartyComputeNeedsTwoPeople(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	conn := dialParty(t, srv.URL, "lonely01")

	addNames(t, conn, "Ana")
	send(t, conn, ClientMessage{Type: "compute"})

	notice := readMessage(t, conn)
	assert.Equal(t, "notice", notice.Type)
	assert.Equal(t, "Hold up!", notice.Title)

	state := readMessage(t, conn)
	assert.False(t, state.Loading)
	assert.Nil(t, state.Result)
}

func TestPartyResetDropsPendingResult(t *testing.T) {
	cfg := testConfig()
	cfg.revealDelay = 200 * time.Millisecond
	srv, _ := newTestServer(t, cfg)
	conn := dialParty(t, srv.URL, "reset001")

	addNames(t, conn, "Ana", "Bo")

	send(t, conn, ClientMessage{Type: "compute"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Loading })

	send(t, conn, ClientMessage{Type: "reset"})
	reset := readMessage(t, conn)
	assert.False(t, reset.Loading)
	assert.Nil(t, reset.Result)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*cfg.revealDelay)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "a reset draw must never be revealed")
}

func TestPartyNewerComputeSupersedesPendingReveal(t *testing.T) {
	cfg := testConfig()
	cfg.revealDelay = 200 * time.Millisecond
	srv, _ := newTestServer(t, cfg)
	conn := dialParty(t, srv.URL, "again001")

	addNames(t, conn, "Ana", "Bo")

	send(t, conn, ClientMessage{Type: "set_amount", Text: "100"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Amount == "100" })
	send(t, conn, ClientMessage{Type: "compute"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Loading })

	send(t, conn, ClientMessage{Type: "set_amount", Text: "50"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Amount == "50" })
	send(t, conn, ClientMessage{Type: "compute"})

	var reveals []string
	deadline := time.Now().Add(3*cfg.revealDelay + cfg.confettiDuration)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))

		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Result != nil && msg.Confetti {
			reveals = append(reveals, msg.Result.Message)
		}
	}

	require.Len(t, reveals, 1)
	assert.Contains(t, reveals[0], "Total bill: ₹50 💸")
}

func TestPartySplitSomeValidation(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	conn := dialParty(t, srv.URL, "split001")

	addNames(t, conn, "A", "B", "C")

	send(t, conn, ClientMessage{Type: "select_mode", Mode: "split-some"})
	readUntil(t, conn, func(m wireMessage) bool { return m.Mode == "split-some" })

	send(t, conn, ClientMessage{Type: "set_custom_split", Text: "7"})
	bad := readUntil(t, conn, func(m wireMessage) bool { return m.SplitError != "" })
	assert.False(t, bad.CanCompute)

	send(t, conn, ClientMessage{Type: "set_custom_split", Text: "3"})
	good := readUntil(t, conn, func(m wireMessage) bool { return m.SplitError == "" })
	assert.True(t, good.CanCompute)
}

func TestToAction(t *testing.T) {
	tests := []struct {
		msg  ClientMessage
		want session.Action
		ok   bool
	}{
		{ClientMessage{Type: "add_name", Name: "Ana"}, session.AddName{Name: "Ana"}, true},
		{ClientMessage{Type: "remove_name", Name: "Ana"}, session.RemoveName{Name: "Ana"}, true},
		{ClientMessage{Type: "select_mode", Mode: "split-all"}, session.SelectMode{Mode: outcome.SplitAll}, true},
		{ClientMessage{Type: "select_mode", Mode: "everyone-runs"}, nil, false},
		{ClientMessage{Type: "select_preset", Count: 3}, session.SelectPreset{Count: 3}, true},
		{ClientMessage{Type: "set_custom_split", Text: "5"}, session.SetCustomSplit{Text: "5"}, true},
		{ClientMessage{Type: "set_amount", Text: "99.5"}, session.SetAmount{Text: "99.5"}, true},
		{ClientMessage{Type: "compute"}, session.RequestCompute{}, true},
		{ClientMessage{Type: "reset"}, session.Reset{}, true},
		{ClientMessage{Type: "reveal"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Type, func(t *testing.T) {
			got, ok := toAction(tt.msg)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateMessageEncodesEmptyRoster(t *testing.T) {
	data, err := json.Marshal(stateMessage(session.New(), uuid.Nil))
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, `"type":"state"`)
	assert.Contains(t, body, `"names":[]`)
	assert.Contains(t, body, `"presets":[2,3,4]`)
	assert.Contains(t, body, `"mode":"one-pays"`)
	assert.NotContains(t, body, `"result"`)
}

func TestNewPartyIDIsUnique(t *testing.T) {
	cfg := testConfig()
	pm := newPartyManager(cfg, outcome.FixedPerm(nil), newMetrics())
	t.Cleanup(pm.Close)

	seen := make(map[string]bool)
	for range 200 {
		id := pm.newPartyID()
		assert.Len(t, id, 8)
		assert.False(t, seen[id])
		seen[id] = true
		pm.getParty(id)
	}
}

func TestReapRemovesIdleParties(t *testing.T) {
	cfg := testConfig()
	pm := newPartyManager(cfg, outcome.FixedPerm(nil), newMetrics())
	t.Cleanup(pm.Close)

	party := pm.getParty("idle0001")

	pm.reap(time.Now().Add(time.Minute))

	_, ok := pm.lookup("idle0001")
	assert.False(t, ok)

	select {
	case <-party.quit:
	default:
		t.Fatal("reaped party still running")
	}
}
