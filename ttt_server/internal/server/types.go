package server

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the liveness state of a ServerSession.
type SessionStatus string

const (
	StatusActive       SessionStatus = "ACTIVE"
	StatusAwaitingPong SessionStatus = "AWAITING_PONG"
	StatusTerminated   SessionStatus = "TERMINATED"
)

// Termination reasons, used as metric labels and ledger values.
const (
	ReasonClosed   = "closed"
	ReasonLiveness = "liveness_timeout"
	ReasonFinished = "finished"
	ReasonAdmin    = "admin"
	ReasonShutdown = "shutdown"
)

// PayloadHandler is the game logic invoked by a session worker. State is
// opaque to the session layer.
type PayloadHandler interface {
	IsBootstrap(body string) bool
	Bootstrap(body string) (state any, reply string, final bool, err error)
	Apply(state any, body string) (next any, reply string, final bool, err error)
	Outcome(state any) (status string, moves int)
}

// ServerSession holds per-remote protocol state. It is owned by exactly one
// worker goroutine.
type ServerSession struct {
	ID            uuid.UUID
	Remote        netip.AddrPort
	Opening       string
	LastAppliedID uint64
	LastReply     []byte
	State         any
	MissedProbes  int
	Status        SessionStatus
	Finished      bool
	StartedAt     time.Time
}

// SessionSnapshot is the read-only view of a session published by its worker.
type SessionSnapshot struct {
	ID            string        `json:"id"`
	Remote        string        `json:"remote"`
	LastAppliedID uint64        `json:"last_applied_id"`
	MissedProbes  int           `json:"missed_probes"`
	Status        SessionStatus `json:"status"`
	Finished      bool          `json:"finished"`
	StartedAt     time.Time     `json:"started_at"`
}

func (s *ServerSession) snapshot() *SessionSnapshot {
	return &SessionSnapshot{
		ID:            s.ID.String(),
		Remote:        s.Remote.String(),
		LastAppliedID: s.LastAppliedID,
		MissedProbes:  s.MissedProbes,
		Status:        s.Status,
		Finished:      s.Finished,
		StartedAt:     s.StartedAt,
	}
}
