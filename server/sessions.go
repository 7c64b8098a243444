package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nncert/nncert/api"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/internal/orderedmap"
	"github.com/nncert/nncert/shm"
)

// preparedSession is one server-held prepared model: the driver
// handle plus the constant pools backing it, which must stay mapped
// until the session is closed.
type preparedSession struct {
	prepared hal.PreparedModel
	pools    []*shm.Memory
}

func (s *preparedSession) close() {
	s.prepared.Close()
	for _, pool := range s.pools {
		pool.Close()
	}
}

// burstSession is one server-held burst channel and its slot table.
// A slot's content travels once; afterwards the client references the
// slot alone and the session reuses the pool it allocated, mirroring
// how a driver keeps memory mapped across burst executions. Slots
// live until the channel closes, and executions serialize like the
// single producer queue a real burst rides on.
type burstSession struct {
	mu    sync.Mutex
	burst hal.Burst
	slots *orderedmap.Map[int32, *shm.Memory]
}

func newBurstSession(burst hal.Burst) *burstSession {
	return &burstSession{burst: burst, slots: orderedmap.New[int32, *shm.Memory]()}
}

// execute resolves the request's slots, runs it over the channel, and
// reports the outcome with the post execution pool contents. A non
// nil error means the request violated the slot protocol and nothing
// ran.
func (s *burstSession) execute(ctx context.Context, breq *api.BurstExecuteRequest) (*api.BurstExecuteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools, slots, err := s.resolveLocked(breq.Pools)
	if err != nil {
		return nil, err
	}

	status, shapes, timing, err := s.burst.Execute(ctx, breq.HALRequest(pools), slots, breq.Measure)
	if err != nil {
		slog.Warn("burst execution", "error", err)
		if status == hal.BurstOK {
			status = hal.BurstOpFailed
		}
		shapes, timing = nil, hal.TimingUnavailable
	}

	return &api.BurstExecuteResponse{
		Status:       status,
		OutputShapes: api.NewOutputShapes(shapes),
		Timing:       api.NewTiming(timing),
		Pools:        poolContents(pools),
	}, nil
}

// resolveLocked maps slot references onto cached pools, admitting new
// slots that carry content. Resolved pools stay owned by the session.
func (s *burstSession) resolveLocked(pools []api.BurstPool) ([]*shm.Memory, []int32, error) {
	resolved := make([]*shm.Memory, len(pools))
	slots := make([]int32, len(pools))
	for i, ref := range pools {
		slots[i] = ref.Slot

		if pool, ok := s.slots.Get(ref.Slot); ok {
			if uint32(pool.Size()) != ref.Size {
				return nil, nil, fmt.Errorf("slot %d holds %d bytes, request declares %d", ref.Slot, pool.Size(), ref.Size)
			}
			resolved[i] = pool
			continue
		}

		if ref.Data == nil {
			return nil, nil, fmt.Errorf("slot %d is not cached and carries no content", ref.Slot)
		}
		if uint32(len(ref.Data)) != ref.Size {
			return nil, nil, fmt.Errorf("slot %d declares %d bytes but carries %d", ref.Slot, ref.Size, len(ref.Data))
		}

		pool, err := shm.Allocate(fmt.Sprintf("burst slot %d", ref.Slot), len(ref.Data))
		if err != nil {
			return nil, nil, err
		}
		copy(pool.Bytes(), ref.Data)
		s.slots.Set(ref.Slot, pool)
		resolved[i] = pool
	}

	return resolved, slots, nil
}

func (s *burstSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.burst.Close()
	for _, pool := range s.slots.All() {
		pool.Close()
	}
	s.slots = orderedmap.New[int32, *shm.Memory]()
}

func poolContents(pools []*shm.Memory) [][]byte {
	out := make([][]byte, len(pools))
	for i, pool := range pools {
		out[i] = append([]byte(nil), pool.Bytes()...)
	}
	return out
}

// sessions tracks prepared models and burst channels by id.
type sessions struct {
	mu       sync.Mutex
	prepared map[string]*preparedSession
	bursts   map[string]*burstSession
}

func newSessions() *sessions {
	return &sessions{
		prepared: make(map[string]*preparedSession),
		bursts:   make(map[string]*burstSession),
	}
}

func (s *sessions) addPrepared(session *preparedSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.prepared[id] = session
	return id
}

func (s *sessions) getPrepared(id string) (*preparedSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.prepared[id]
	return session, ok
}

func (s *sessions) removePrepared(id string) (*preparedSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.prepared[id]
	delete(s.prepared, id)
	return session, ok
}

func (s *sessions) addBurst(session *burstSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.bursts[id] = session
	return id
}

func (s *sessions) getBurst(id string) (*burstSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.bursts[id]
	return session, ok
}

func (s *sessions) removeBurst(id string) (*burstSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.bursts[id]
	delete(s.bursts, id)
	return session, ok
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.bursts {
		session.close()
		delete(s.bursts, id)
	}
	for id, session := range s.prepared {
		session.close()
		delete(s.prepared, id)
	}
}
