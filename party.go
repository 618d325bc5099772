/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Who Pays the Bill
//
// Everyone at the table opens the same party link. Names, the bill mode,
// the split size and the amount are shared live over a websocket, and any
// guest can press the button. The server runs the draw, holds the result back
// for a dramatic pause, then shows it to everyone with a burst of confetti.
//
// Features:
// - WebSockets per party ID: /path/:partyid and /path/:partyid/ws
// - Duplicate names rejected, with the notice sent only to the offending client
// - Pending results superseded by newer requests, or dropped on reset
// - Parties auto-reaped after a configurable idle timeout
// - Random 8-char party IDs via crypto/rand, with server-side collision check
// - QR codes for inviting guests and for sharing the result, backed by go-qrcode

package main

import (
	"crypto/rand"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/whopays/outcome"
	"github.com/Seednode/whopays/pacing"
	"github.com/Seednode/whopays/session"
)

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "add_name", "remove_name", "select_mode", "select_preset", "set_custom_split", "set_amount", "compute", "reset"
	Name  string `json:"name,omitempty"`  // add_name / remove_name
	Mode  string `json:"mode,omitempty"`  // select_mode
	Count int    `json:"count,omitempty"` // select_preset
	Text  string `json:"text,omitempty"`  // set_custom_split / set_amount
}

// ResultView is the part of the state that only exists after a draw.
type ResultView struct {
	ID       string   `json:"id"`
	Mode     string   `json:"mode"`
	Message  string   `json:"message"`
	Selected []string `json:"selected"`
	Share    string   `json:"share"`
}

// StateMessage is broadcast to every client after each change.
type StateMessage struct {
	Type        string      `json:"type"` // "state"
	Names       []string    `json:"names"`
	Mode        string      `json:"mode"`
	Presets     []int       `json:"presets"`
	SplitPreset int         `json:"split_preset"`
	CustomSplit string      `json:"custom_split"`
	SplitError  string      `json:"split_error,omitempty"`
	Amount      string      `json:"amount"`
	Loading     bool        `json:"loading"`
	Confetti    bool        `json:"confetti"`
	CanCompute  bool        `json:"can_compute"`
	Result      *ResultView `json:"result,omitempty"`
}

// NoticeMessage is sent only to the client whose action caused it.
type NoticeMessage struct {
	Type        string `json:"type"` // "notice"
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

type clientAction struct {
	client *Client
	action session.Action
}

type timerEvent struct {
	token  pacing.Token
	draw   uuid.UUID
	action session.Action
}

type Party struct {
	id      string
	cfg     *Config
	metrics *metrics
	random  outcome.RandomSource
	pacer   *pacing.Pacer

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	actions  chan clientAction
	timers   chan timerEvent
	quit     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	state      session.State
	draw       uuid.UUID
	lastActive time.Time
}

func newParty(cfg *Config, id string, random outcome.RandomSource, m *metrics, clock pacing.Clock) *Party {
	now := time.Now()
	return &Party{
		id:         id,
		cfg:        cfg,
		metrics:    m,
		random:     random,
		pacer:      pacing.New(clock),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan clientAction),
		timers:     make(chan timerEvent, 4),
		quit:       make(chan struct{}),
		state:      session.New(),
		lastActive: now,
	}
}

func (p *Party) run() {
	for {
		select {
		case c := <-p.register:
			p.mu.Lock()
			p.lastActive = time.Now()
			p.clients[c] = true
			snapshot := stateMessage(p.state, p.draw)
			p.mu.Unlock()

			p.sendTo(c, snapshot)

		case c := <-p.unreg:
			p.mu.Lock()
			p.lastActive = time.Now()
			p.mu.Unlock()

			if _, ok := p.clients[c]; ok {
				delete(p.clients, c)
				close(c.send)
			}

		case ca := <-p.actions:
			p.handleAction(ca.client, ca.action)

		case ev := <-p.timers:
			p.handleTimer(ev)

		case <-p.quit:
			for c := range p.clients {
				delete(p.clients, c)
				close(c.send)
				_ = c.conn.Close()
			}
			return
		}
	}
}

// handleAction applies a client action and starts a draw when one was accepted.
func (p *Party) handleAction(c *Client, a session.Action) {
	p.mu.Lock()

	p.lastActive = time.Now()
	next := session.Reduce(p.state, a)

	switch a.(type) {
	case session.RequestCompute:
		if next.Loading && next.Notice == nil {
			next = p.beginDrawLocked(next)
		}
	case session.Reset:
		p.pacer.Invalidate()
	}

	notice := next.Notice
	next = session.Reduce(next, session.DismissNotice{})
	p.state = next

	snapshot := stateMessage(p.state, p.draw)
	p.mu.Unlock()

	if notice != nil {
		p.sendTo(c, NoticeMessage{
			Type:        "notice",
			Title:       notice.Title,
			Description: notice.Description,
		})
	}

	p.broadcast(snapshot)
}

// beginDrawLocked runs the engine now and schedules the reveal. The result
// only lands if no newer request or reset happens before the delay elapses.
func (p *Party) beginDrawLocked(s session.State) session.State {
	tok := p.pacer.Begin()

	req, err := s.Request()
	if err != nil {
		p.metrics.rejected(err)
		return session.Reduce(s, session.Fail{Err: err})
	}

	out, err := outcome.Compute(req, p.random)
	if err != nil {
		logf(p.cfg, "PARTY: Draw rejected in %s: %v", p.id, err)
		p.metrics.rejected(err)
		return session.Reduce(s, session.Fail{Err: err})
	}

	draw := uuid.New()

	p.pacer.After(tok, p.cfg.revealDelay, func() {
		p.deliver(timerEvent{token: tok, draw: draw, action: session.Reveal{Outcome: out}})
	})

	return s
}

func (p *Party) handleTimer(ev timerEvent) {
	if !p.pacer.Current(ev.token) {
		return
	}

	p.mu.Lock()
	p.state = session.Reduce(p.state, ev.action)

	if reveal, ok := ev.action.(session.Reveal); ok {
		p.draw = ev.draw
		p.metrics.computed(reveal.Outcome.Mode)
		logf(p.cfg, "PARTY: Revealed %s draw %s in %s", reveal.Outcome.Mode, ev.draw, p.id)

		tok := ev.token
		p.pacer.After(tok, p.cfg.confettiDuration, func() {
			p.deliver(timerEvent{token: tok, action: session.HideConfetti{}})
		})
	}

	snapshot := stateMessage(p.state, p.draw)
	p.mu.Unlock()

	p.broadcast(snapshot)
}

// deliver hands a fired timer back to the party loop.
func (p *Party) deliver(ev timerEvent) {
	select {
	case p.timers <- ev:
	case <-p.quit:
	}
}

func (p *Party) dispatch(c *Client, a session.Action) bool {
	select {
	case p.actions <- clientAction{client: c, action: a}:
		return true
	case <-p.quit:
		return false
	}
}

// sendTo queues msg for c, dropping clients that are gone or too slow.
func (p *Party) sendTo(c *Client, msg any) {
	if !p.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(p.clients, c)
		close(c.send)
	}
}

func (p *Party) broadcast(msg any) {
	for c := range p.clients {
		p.sendTo(c, msg)
	}
}

// Result returns the current outcome, if a reveal has happened.
func (p *Party) Result() (outcome.Outcome, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state.Result == nil {
		return outcome.Outcome{}, false
	}

	return *p.state.Result, true
}

func (p *Party) idleSince() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lastActive
}

// stop ends the party loop and cancels pending reveals.
func (p *Party) stop() {
	p.stopOnce.Do(func() {
		p.pacer.Stop()
		close(p.quit)
	})
}

func stateMessage(s session.State, draw uuid.UUID) StateMessage {
	names := s.Roster.Names()
	if names == nil {
		names = []string{}
	}

	msg := StateMessage{
		Type:        "state",
		Names:       names,
		Mode:        s.Mode.String(),
		Presets:     session.SplitPresets,
		SplitPreset: s.SplitPreset,
		CustomSplit: s.CustomSplit,
		SplitError:  s.SplitError,
		Amount:      s.Amount,
		Loading:     s.Loading,
		Confetti:    s.Confetti,
		CanCompute:  s.CanCompute(),
	}

	if s.Result != nil {
		msg.Result = &ResultView{
			ID:       draw.String(),
			Mode:     s.Result.Mode.String(),
			Message:  s.Result.Message,
			Selected: s.Result.Selected,
			Share:    outcome.ShareText(s.Result.Message),
		}
	}

	return msg
}

// toAction maps a wire message onto a reducer action.
func toAction(msg ClientMessage) (session.Action, bool) {
	switch msg.Type {
	case "add_name":
		return session.AddName{Name: msg.Name}, true
	case "remove_name":
		return session.RemoveName{Name: msg.Name}, true
	case "select_mode":
		mode, err := outcome.ParseMode(msg.Mode)
		if err != nil {
			return nil, false
		}
		return session.SelectMode{Mode: mode}, true
	case "select_preset":
		return session.SelectPreset{Count: msg.Count}, true
	case "set_custom_split":
		return session.SetCustomSplit{Text: msg.Text}, true
	case "set_amount":
		return session.SetAmount{Text: msg.Text}, true
	case "compute":
		return session.RequestCompute{}, true
	case "reset":
		return session.Reset{}, true
	default:
		return nil, false
	}
}

const maxMessageSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// PartyManager holds a set of parties keyed by ID, so each $path/$partyid
// is its own isolated session.
type PartyManager struct {
	cfg         *Config
	metrics     *metrics
	random      outcome.RandomSource
	clock       pacing.Clock
	idleTimeout time.Duration

	mu      sync.Mutex
	parties map[string]*Party
	done    chan struct{}
	once    sync.Once
}

func newPartyManager(cfg *Config, random outcome.RandomSource, m *metrics) *PartyManager {
	pm := &PartyManager{
		cfg:         cfg,
		metrics:     m,
		random:      random,
		clock:       pacing.RealClock{},
		idleTimeout: cfg.sessionTimeout,
		parties:     make(map[string]*Party),
		done:        make(chan struct{}),
	}
	if pm.idleTimeout > 0 {
		go pm.reaperLoop()
	}
	return pm
}

func (pm *PartyManager) getParty(id string) *Party {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if party, ok := pm.parties[id]; ok {
		return party
	}

	party := newParty(pm.cfg, id, pm.random, pm.metrics, pm.clock)
	pm.parties[id] = party
	pm.metrics.parties.Set(float64(len(pm.parties)))
	go party.run()
	return party
}

func (pm *PartyManager) lookup(id string) (*Party, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	party, ok := pm.parties[id]
	return party, ok
}

// newPartyID generates a crypto-random party ID and ensures it doesn't
// collide with existing parties.
func (pm *PartyManager) newPartyID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	for {
		out := make([]byte, 0, 8)
		buf := make([]byte, 16)

		for len(out) < 8 {
			if _, err := rand.Read(buf); err != nil {
				panic("crypto/rand failure: " + err.Error())
			}
			for _, b := range buf {
				if b <= max && len(out) < 8 {
					out = append(out, letters[int(b)%len(letters)])
				}
			}
		}
		id := string(out)

		pm.mu.Lock()
		_, exists := pm.parties[id]
		pm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes parties that have been idle longer than idleTimeout.
func (pm *PartyManager) reaperLoop() {
	ticker := time.NewTicker(pm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
			pm.reap(time.Now().Add(-pm.idleTimeout))
		}
	}
}

func (pm *PartyManager) reap(cutoff time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for id, party := range pm.parties {
		if party.idleSince().Before(cutoff) {
			delete(pm.parties, id)
			party.stop()
			logf(pm.cfg, "PARTY: Reaped idle party %s", id)
		}
	}

	pm.metrics.parties.Set(float64(len(pm.parties)))
}

// Close stops the reaper and every party.
func (pm *PartyManager) Close() {
	pm.once.Do(func() {
		close(pm.done)

		pm.mu.Lock()
		defer pm.mu.Unlock()

		for id, party := range pm.parties {
			delete(pm.parties, id)
			party.stop()
		}

		pm.metrics.parties.Set(0)
	})
}

// WebSocket handler that picks the party based on :partyid
func serveWSForManager(cfg *Config, pm *PartyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		partyID := ps.ByName("partyid")
		if partyID == "" {
			http.Error(w, "missing party id", http.StatusBadRequest)
			return
		}

		party := pm.getParty(partyID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
		}

		select {
		case party.register <- client:
		case <-party.quit:
			_ = conn.Close()
			return
		}

		logf(cfg, "PARTY: %s joined %s", realIP(r), partyID)

		go client.writePump()
		client.readPump(party)
	}
}

func (c *Client) readPump(p *Party) {
	defer func() {
		select {
		case p.unreg <- c:
		case <-p.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		action, ok := toAction(msg)
		if !ok {
			// ignore unknown types
			continue
		}

		if !p.dispatch(c, action) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func requestScheme(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme
}

const qrSize = 320 // mobile-friendly size

func writeQR(w http.ResponseWriter, content string) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// inviteQRHandler serves a PNG QR code pointing at the party page.
func inviteQRHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("partyid") == "" {
			http.Error(w, "missing party id", http.StatusBadRequest)
			return
		}

		securityHeaders(cfg, w)

		// We are at /.../:partyid/qr; strip trailing "/qr" to get the party URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		writeQR(w, requestScheme(r)+"://"+r.Host+path)
	}
}

// resultQRHandler serves a PNG QR code carrying the current share text.
func resultQRHandler(cfg *Config, pm *PartyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)

		party, ok := pm.lookup(ps.ByName("partyid"))
		if !ok {
			http.Error(w, "no such party", http.StatusNotFound)
			return
		}

		result, ok := party.Result()
		if !ok {
			http.Error(w, "no result yet", http.StatusNotFound)
			return
		}

		writeQR(w, outcome.ShareText(result.Message))
	}
}

// redirectNewParty handles GET /path by generating a new random party ID
// (with server-side collision detection) and redirecting to /path/:partyid.
func redirectNewParty(cfg *Config, path string, pm *PartyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		partyID := pm.newPartyID()
		logf(cfg, "PARTY: Created party %s%s/%s", cfg.prefix, path, partyID)
		http.Redirect(w, r, cfg.prefix+path+"/"+partyID, http.StatusTemporaryRedirect)
	}
}

// registerParty sets up routes so that:
//   - $path                     → redirects to new random party (8-char ID)
//   - $path/:partyid            → HTML client
//   - $path/:partyid/ws         → WebSocket for that party
//   - $path/:partyid/qr         → PNG QR code for that party URL
//   - $path/:partyid/result.png → PNG QR code of the current result
func registerParty(cfg *Config, path string, mux *httprouter.Router, pm *PartyManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewParty(cfg, path, pm))

	mux.GET(cfg.prefix+path+"/:partyid", serveEmbedded(cfg, "assets/party.html", errs))

	mux.GET(cfg.prefix+path+"/:partyid/ws", serveWSForManager(cfg, pm))

	mux.GET(cfg.prefix+path+"/:partyid/qr", inviteQRHandler(cfg))

	mux.GET(cfg.prefix+path+"/:partyid/result.png", resultQRHandler(cfg, pm))
}
