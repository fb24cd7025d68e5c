package store

import (
	"context"
	"sync"

	"github.com/ceyewan/aegis/store/serializer"
	"github.com/ceyewan/aegis/xerrors"
)

// memoryStore 单进程内存后端，适合单元测试和不需要跨进程共享的场景
// 内部仍然走序列化，保证与持久化后端完全一致的往返语义
type memoryStore struct {
	ser     serializer.Serializer
	records map[string][]byte
	mu      sync.RWMutex
}

func newMemory(ser serializer.Serializer) Store {
	return &memoryStore{
		ser:     ser,
		records: make(map[string][]byte),
	}
}

func (s *memoryStore) Load(ctx context.Context, endpoint string) (*Record, error) {
	key := SanitizeEndpoint(endpoint)

	s.mu.RLock()
	data, exists := s.records[key]
	s.mu.RUnlock()

	if !exists {
		return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s", endpoint)
	}

	var record Record
	if err := s.ser.Unmarshal(data, &record); err != nil {
		return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s: corrupt record: %v", endpoint, err)
	}
	return &record, nil
}

func (s *memoryStore) Save(ctx context.Context, endpoint string, record *Record) error {
	if record == nil {
		return ErrRecordNil
	}

	data, err := s.ser.Marshal(record)
	if err != nil {
		return xerrors.Wrap(err, "failed to marshal record")
	}

	s.mu.Lock()
	s.records[SanitizeEndpoint(endpoint)] = data
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	delete(s.records, SanitizeEndpoint(endpoint))
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
