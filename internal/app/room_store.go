package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// MemoryRoomStore is a threadsafe in-memory core.RoomStore.
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.RoomState
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[domain.RoomID]*core.RoomState)}
}

func (s *MemoryRoomStore) Get(id domain.RoomID) (*core.RoomState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[id]
	return rs, ok
}

func (s *MemoryRoomStore) Put(rs *core.RoomState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[rs.Room.ID] = rs
}

func (s *MemoryRoomStore) Delete(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

func (s *MemoryRoomStore) List() []*core.RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.RoomState, 0, len(s.rooms))
	for _, rs := range s.rooms {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *MemoryRoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
