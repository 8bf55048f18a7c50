package server

import (
	"strconv"
	"sync"
	"testing"
	"time"

	common "github.com/iselt/ttt-udp/common"
	"github.com/iselt/ttt-udp/common/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentGamesLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	const numClients = 32

	srv := startServer(t, testConfig())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var finished, failed int

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := playToEnd(srv.LocalAddr().String())
			mu.Lock()
			defer mu.Unlock()
			if ok {
				finished++
			} else {
				failed++
			}
		}()
	}
	wg.Wait()

	t.Logf("Load test results: %d finished, %d failed", finished, failed)
	assert.Equal(t, numClients, finished)

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 0
	}, 5*time.Second, 50*time.Millisecond, "closed sessions should be reaped")
}

// playToEnd plays one game with retransmission and closes the session. It
// avoids testing.T so it can run on any goroutine.
func playToEnd(server string) bool {
	addr, err := common.ResolveAddrPort(server)
	if err != nil {
		return false
	}
	ep, err := common.ListenEndpoint("127.0.0.1:0", 20*time.Millisecond, nil)
	if err != nil {
		return false
	}
	defer ep.Close()

	buf := make([]byte, common.MaxDatagramSize)
	request := func(id uint64, packet []byte) (int, game.Status, bool) {
		for attempt := 0; attempt < 10; attempt++ {
			if err := ep.WritePacket(packet, addr); err != nil {
				return 0, 0, false
			}
			deadline := time.Now().Add(200 * time.Millisecond)
			for time.Now().Before(deadline) {
				n, _, err := ep.ReadPacket(buf)
				if err != nil {
					continue
				}
				d := common.Decode(buf[:n])
				if d.Kind != common.KindEnvelope || d.Envelope.ID != id {
					continue
				}
				move, status, err := game.ParseReply(d.Envelope.Body)
				return move, status, err == nil
			}
		}
		return 0, 0, false
	}

	var board game.Board
	if _, _, ok := request(0, common.EncodeBootstrap(game.RoleRequesterFirst)); !ok {
		return false
	}
	for id := uint64(1); id <= 5; id++ {
		move := board.Free()[0]
		board, _ = board.PlaceRequester(move)
		reply, status, ok := request(id, common.Encode(id, strconv.Itoa(move)))
		if !ok {
			return false
		}
		if reply != game.NoMove {
			board, _ = board.PlaceResponder(reply)
		}
		if status.Final() {
			_ = ep.WritePacket(common.Encode(id+1, common.BodyClose), addr)
			return true
		}
	}
	return false
}
