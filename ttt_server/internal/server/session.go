package server

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	common "github.com/iselt/ttt-udp/common"
	"go.uber.org/zap"
)

// worker runs the state machine of one ServerSession.
type worker struct {
	session   *ServerSession
	inbox     chan common.Decoded
	transport common.Transport
	handler   PayloadHandler
	recorder  Recorder
	timing    common.TimingConfig
	metrics   *Metrics
	logger    *zap.Logger

	published atomic.Pointer[SessionSnapshot]
	stopped   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func newWorker(remote netip.AddrPort, s *Server) *worker {
	id := uuid.New()
	w := &worker{
		session: &ServerSession{
			ID:        id,
			Remote:    remote,
			Status:    StatusActive,
			StartedAt: time.Now(),
		},
		inbox:     make(chan common.Decoded, s.Config.Timing.InboxSize),
		transport: s.transport,
		handler:   s.handler,
		timing:    s.Config.Timing,
		metrics:   s.Metrics,
		logger: s.Logger.With(
			zap.String("session_id", id.String()),
			zap.Stringer("remote", remote),
		),
		recorder: s.recorder,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.publish()
	return w
}

// forward hands d to the worker without blocking. It reports false when
// the inbox is full.
func (w *worker) forward(d common.Decoded) bool {
	select {
	case w.inbox <- d:
		return true
	default:
		return false
	}
}

// alive reports whether the worker still accepts datagrams.
func (w *worker) alive() bool {
	return !w.stopped.Load()
}

// terminate asks the worker to stop.
func (w *worker) terminate() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// join waits for the worker goroutine to return.
func (w *worker) join() {
	<-w.done
}

func (w *worker) snapshot() SessionSnapshot {
	return *w.published.Load()
}

func (w *worker) publish() {
	w.published.Store(w.session.snapshot())
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("Session started")

	idle := time.NewTimer(w.timing.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finish(ReasonShutdown)
			return

		case <-w.stop:
			w.finish(ReasonAdmin)
			return

		case d := <-w.inbox:
			w.session.MissedProbes = 0
			w.session.Status = StatusActive
			if w.handle(d) {
				w.finish(ReasonClosed)
				return
			}
			w.publish()
			idle.Reset(w.timing.IdleTimeout)

		case <-idle.C:
			if w.session.Finished {
				w.finish(ReasonFinished)
				return
			}
			w.session.MissedProbes++
			if w.session.MissedProbes >= w.timing.MaxMissedProbes {
				w.logger.Info("Client unresponsive, terminating session",
					zap.Int("missed_probes", w.session.MissedProbes),
					zap.Error(common.ErrLivenessTimeout))
				w.finish(ReasonLiveness)
				return
			}
			w.send(common.EncodeControl(common.ControlPing))
			w.metrics.ProbesSent.Inc()
			w.session.Status = StatusAwaitingPong
			w.publish()
			idle.Reset(w.timing.IdleTimeout)
		}
	}
}

// handle applies one inbound datagram. It reports true when the session
// must terminate.
func (w *worker) handle(d common.Decoded) bool {
	if d.Kind == common.KindControl {
		if d.Control == common.ControlPing {
			w.send(common.EncodeControl(common.ControlPong))
		}
		return false
	}

	env := d.Envelope
	s := w.session

	if s.State == nil {
		if env.ID == 0 && w.handler.IsBootstrap(env.Body) {
			w.bootstrap(env)
		} else {
			w.metrics.RecordDrop("not_bootstrapped")
		}
		return false
	}

	switch {
	case env.Body == common.BodyClose && env.ID > s.LastAppliedID:
		w.logger.Info("Client closed session", zap.Uint64("seq", env.ID))
		return true

	case env.ID == s.LastAppliedID:
		w.send(s.LastReply)
		w.metrics.DuplicateReplies.Inc()
		w.logger.Debug("Resent cached reply", zap.Uint64("seq", env.ID))

	case env.ID == s.LastAppliedID+1:
		if s.Finished {
			w.metrics.RecordDrop("finished")
			return false
		}
		next, reply, final, err := w.handler.Apply(s.State, env.Body)
		if err != nil {
			w.metrics.RecordDrop("rejected")
			w.logger.Debug("Rejected request", zap.Uint64("seq", env.ID), zap.String("body", env.Body), zap.Error(err))
			return false
		}
		s.State = next
		s.LastAppliedID = env.ID
		s.LastReply = common.Encode(env.ID, reply)
		s.Finished = final
		w.send(s.LastReply)
		w.metrics.RepliesSent.Inc()
		w.logger.Debug("Applied request", zap.Uint64("seq", env.ID), zap.String("reply", reply))

	default:
		w.metrics.RecordDrop("stale")
		w.logger.Debug("Dropped out-of-order request",
			zap.Uint64("seq", env.ID), zap.Uint64("last_applied", s.LastAppliedID))
	}
	return false
}

func (w *worker) bootstrap(env common.Envelope) {
	s := w.session
	state, reply, final, err := w.handler.Bootstrap(env.Body)
	if err != nil {
		w.metrics.RecordDrop("rejected")
		w.logger.Debug("Rejected bootstrap", zap.String("body", env.Body), zap.Error(err))
		return
	}
	s.State = state
	s.Opening = env.Body
	s.LastAppliedID = 0
	s.LastReply = common.Encode(0, reply)
	s.Finished = final
	w.send(s.LastReply)
	w.metrics.RepliesSent.Inc()
	w.logger.Debug("Game started", zap.String("role", env.Body), zap.String("reply", reply))
}

func (w *worker) send(packet []byte) {
	if err := w.transport.WritePacket(packet, w.session.Remote); err != nil {
		w.metrics.RecordError("send")
		w.logger.Warn("Failed to send datagram", zap.Error(err))
	}
}

// finish marks the session terminated, publishes the final snapshot and
// writes the ledger entry.
func (w *worker) finish(reason string) {
	w.stopped.Store(true)
	s := w.session
	s.Status = StatusTerminated
	w.publish()

	duration := time.Since(s.StartedAt)
	w.metrics.RecordSessionEnd(reason, duration.Seconds())
	w.logger.Info("Session terminated",
		zap.String("reason", reason),
		zap.Uint64("last_applied", s.LastAppliedID),
		zap.Duration("duration", duration))

	if w.recorder == nil || s.State == nil {
		return
	}
	outcome, moves := w.handler.Outcome(s.State)
	rec := GameRecord{
		SessionID: s.ID.String(),
		Remote:    s.Remote.String(),
		Opening:   s.Opening,
		Outcome:   outcome,
		Moves:     moves,
		Reason:    reason,
		StartedAt: s.StartedAt,
		EndedAt:   time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.recorder.Record(ctx, rec); err != nil {
		w.metrics.RecordError("ledger")
		w.logger.Warn("Failed to record game", zap.Error(err))
	}
}
