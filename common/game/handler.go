package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Handler adapts the rules to the session layer's string bodies. It is
// shared by all sessions; the random source is guarded.
type Handler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHandler creates a Handler. A nil src seeds from the clock.
func NewHandler(src rand.Source) *Handler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Handler{rng: rand.New(src)}
}

func (h *Handler) pick(free []int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return free[h.rng.Intn(len(free))]
}

// IsBootstrap reports whether body opens a session.
func (h *Handler) IsBootstrap(body string) bool {
	return IsRole(body)
}

// Bootstrap starts a game for the role token in body.
func (h *Handler) Bootstrap(body string) (any, string, bool, error) {
	b, move, st, err := Start(body, h.pick)
	if err != nil {
		return nil, "", false, err
	}
	return b, FormatReply(move, st), st.Final(), nil
}

// Apply plays the move in body against state.
func (h *Handler) Apply(state any, body string) (any, string, bool, error) {
	b, ok := state.(Board)
	if !ok {
		return state, "", false, fmt.Errorf("unexpected game state %T", state)
	}
	move, err := ParseMove(body)
	if err != nil {
		return state, "", false, err
	}
	next, reply, st, err := Apply(b, move, h.pick)
	if err != nil {
		return state, "", false, err
	}
	return next, FormatReply(reply, st), st.Final(), nil
}

// Outcome summarizes state for the game ledger.
func (h *Handler) Outcome(state any) (string, int) {
	b, ok := state.(Board)
	if !ok {
		return "unknown", 0
	}
	return b.Status().String(), b.Moves()
}
