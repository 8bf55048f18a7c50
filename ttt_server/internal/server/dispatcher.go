package server

import (
	"context"
	"net/netip"
	"sort"
	"time"

	common "github.com/iselt/ttt-udp/common"
	"go.uber.org/zap"
)

// receiveLoop reads datagrams and routes them to session workers until ctx
// is cancelled. A transport failure ends the loop with an error.
func (s *Server) receiveLoop(ctx context.Context) error {
	buffer := make([]byte, common.MaxDatagramSize)

	s.Logger.Info("Server is ready to receive", zap.Stringer("listen_addr", s.transport.LocalAddr()))

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, from, err := s.transport.ReadPacket(buffer)
		if err != nil {
			if common.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.Metrics.RecordError("receive")
			return err
		}
		s.Metrics.DatagramsReceived.Inc()

		s.dispatch(ctx, from, common.Decode(buffer[:n]))
	}
}

// dispatch routes one decoded datagram.
func (s *Server) dispatch(ctx context.Context, from netip.AddrPort, d common.Decoded) {
	switch d.Kind {
	case common.KindMalformed:
		s.Metrics.RecordDrop("malformed")
		s.Logger.Debug("Discarded malformed datagram", zap.Stringer("remote", from))
		return

	case common.KindEnvelope:
		if d.Envelope.ID == 0 && s.handler.IsBootstrap(d.Envelope.Body) {
			s.bootstrap(ctx, from, d)
			return
		}
	}

	w := s.lookup(from)
	if w == nil || !w.alive() {
		s.Metrics.RecordDrop("no_session")
		return
	}
	s.forward(w, d)
}

// bootstrap starts a new session for from, or forwards a duplicate
// bootstrap to the live one. A stopped worker still in the table is handed
// to the reaper to be joined.
func (s *Server) bootstrap(ctx context.Context, from netip.AddrPort, d common.Decoded) {
	s.mu.Lock()
	w, exists := s.sessions[from]
	if exists && w.alive() {
		s.mu.Unlock()
		s.forward(w, d)
		return
	}
	if exists {
		s.retired = append(s.retired, w)
	}

	w = newWorker(from, s)
	s.sessions[from] = w
	s.mu.Unlock()

	s.Metrics.RecordSessionStart()
	w.forward(d)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		w.run(ctx)
	}()
}

func (s *Server) forward(w *worker, d common.Decoded) {
	if !w.forward(d) {
		s.Metrics.RecordDrop("inbox_full")
		w.logger.Debug("Session inbox full, dropping datagram")
	}
}

func (s *Server) lookup(remote netip.AddrPort) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[remote]
}

// reapLoop removes stopped sessions every ReapInterval.
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Timing.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped := s.reap()
			if reaped > 0 {
				s.Logger.Debug("Reaped stopped sessions", zap.Int("count", reaped))
			}
			if ce := s.Logger.Check(zap.DebugLevel, "Live sessions"); ce != nil {
				ce.Write(zap.Strings("sessions", s.liveRemotes()))
			}
		}
	}
}

// reap removes every entry whose worker has stopped and joins it. Joining
// happens outside the table lock since a finishing worker may still be
// writing its ledger entry.
func (s *Server) reap() int {
	s.mu.Lock()
	stopped := s.retired
	s.retired = nil
	for remote, w := range s.sessions {
		if w.alive() {
			continue
		}
		stopped = append(stopped, w)
		delete(s.sessions, remote)
	}
	s.mu.Unlock()

	for _, w := range stopped {
		w.join()
	}
	return len(stopped)
}

func (s *Server) liveRemotes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	remotes := make([]string, 0, len(s.sessions))
	for remote, w := range s.sessions {
		if w.alive() {
			remotes = append(remotes, remote.String())
		}
	}
	sort.Strings(remotes)
	return remotes
}

// Sessions returns a snapshot of every tracked session, including stopped
// ones not yet reaped.
func (s *Server) Sessions() []SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]SessionSnapshot, 0, len(s.sessions))
	for _, w := range s.sessions {
		snapshots = append(snapshots, w.snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.Before(snapshots[j].StartedAt)
	})
	return snapshots
}

// Session returns the snapshot for remote.
func (s *Server) Session(remote netip.AddrPort) (SessionSnapshot, bool) {
	w := s.lookup(remote)
	if w == nil {
		return SessionSnapshot{}, false
	}
	return w.snapshot(), true
}

// Terminate stops the live session for remote. It reports false when there
// is none.
func (s *Server) Terminate(remote netip.AddrPort) bool {
	w := s.lookup(remote)
	if w == nil || !w.alive() {
		return false
	}
	w.terminate()
	return true
}
