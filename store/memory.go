// Package store provides persistence backends implementing acts.Store:
// an in-memory implementation for tests and single-process use, and SQL
// backends for durable deployments (spec.md §2 component 10, §6).
package store

import (
	"context"
	"sort"
	"sync"

	acts "github.com/dshills/acts-go"
)

// MemoryStore is an in-memory acts.Store. Designed for testing and
// single-process workflows; data is lost when the process exits.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	models   map[string]acts.ModelRecord
	procs    map[string]acts.ProcRecord
	tasks    map[string]acts.TaskRecord // key: pid+"/"+tid
	byPID    map[string][]string        // pid -> task keys, insertion order
	messages map[string]acts.Message
	events   []acts.EventRecord
	packages map[string]acts.PackageRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:   make(map[string]acts.ModelRecord),
		procs:    make(map[string]acts.ProcRecord),
		tasks:    make(map[string]acts.TaskRecord),
		byPID:    make(map[string][]string),
		messages: make(map[string]acts.Message),
		packages: make(map[string]acts.PackageRecord),
	}
}

func (m *MemoryStore) SaveModel(_ context.Context, r acts.ModelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[r.ID] = r
	return nil
}

func (m *MemoryStore) LoadModel(_ context.Context, id string) (acts.ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.models[id]
	if !ok {
		return acts.ModelRecord{}, acts.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) QueryModels(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.ModelRecord], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]acts.ModelRecord, 0, len(m.models))
	for _, r := range m.models {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return paginate(rows, q), nil
}

func (m *MemoryStore) SaveProc(_ context.Context, r acts.ProcRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[r.ID] = r
	return nil
}

func (m *MemoryStore) LoadProc(_ context.Context, id string) (acts.ProcRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.procs[id]
	if !ok {
		return acts.ProcRecord{}, acts.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) QueryProcs(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.ProcRecord], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]acts.ProcRecord, 0, len(m.procs))
	for _, r := range m.procs {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return paginate(rows, q), nil
}

func taskKey(pid, tid string) string { return pid + "/" + tid }

func (m *MemoryStore) SaveTask(_ context.Context, r acts.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskKey(r.PID, r.ID)
	if _, exists := m.tasks[key]; !exists {
		m.byPID[r.PID] = append(m.byPID[r.PID], key)
	}
	m.tasks[key] = r
	return nil
}

func (m *MemoryStore) LoadTask(_ context.Context, pid, tid string) (acts.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tasks[taskKey(pid, tid)]
	if !ok {
		return acts.TaskRecord{}, acts.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) LoadTasksByPID(_ context.Context, pid string) ([]acts.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.byPID[pid]
	out := make([]acts.TaskRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.tasks[k])
	}
	return out, nil
}

func (m *MemoryStore) QueryTasks(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.TaskRecord], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]acts.TaskRecord, 0, len(m.tasks))
	for _, r := range m.tasks {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PID != rows[j].PID {
			return rows[i].PID < rows[j].PID
		}
		return rows[i].ID < rows[j].ID
	})
	return paginate(rows, q), nil
}

func (m *MemoryStore) SaveMessage(_ context.Context, msg acts.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	return nil
}

func (m *MemoryStore) LoadMessage(_ context.Context, id string) (acts.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return acts.Message{}, acts.ErrNotFound
	}
	return msg, nil
}

func (m *MemoryStore) LoadMessageByTask(_ context.Context, pid, tid string) (acts.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest acts.Message
	found := false
	for _, msg := range m.messages {
		if msg.PID == pid && msg.TID == tid {
			if !found || msg.Updated.After(latest.Updated) {
				latest, found = msg, true
			}
		}
	}
	if !found {
		return acts.Message{}, acts.ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) QueryMessages(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.Message], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]acts.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		rows = append(rows, msg)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Created.Before(rows[j].Created) })
	return paginate(rows, q), nil
}

func (m *MemoryStore) SaveEvent(_ context.Context, e acts.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) QueryEvents(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.EventRecord], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := append([]acts.EventRecord{}, m.events...)
	return paginate(rows, q), nil
}

func (m *MemoryStore) SavePackage(_ context.Context, p acts.PackageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[p.ID] = p
	return nil
}

func (m *MemoryStore) LoadPackage(_ context.Context, id string) (acts.PackageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packages[id]
	if !ok {
		return acts.PackageRecord{}, acts.ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) QueryPackages(_ context.Context, q acts.PageQuery) (acts.PageResult[acts.PackageRecord], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]acts.PackageRecord, 0, len(m.packages))
	for _, p := range m.packages {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return paginate(rows, q), nil
}

// paginate slices rows per q, defaulting PageSize to 50 and PageNum to 1
// (spec.md §6 "{count, page_size, page_count, page_num, rows}").
func paginate[T any](rows []T, q acts.PageQuery) acts.PageResult[T] {
	size := q.PageSize
	if size <= 0 {
		size = 50
	}
	num := q.PageNum
	if num <= 0 {
		num = 1
	}
	count := len(rows)
	pageCount := (count + size - 1) / size
	start := (num - 1) * size
	if start > count {
		start = count
	}
	end := start + size
	if end > count {
		end = count
	}
	return acts.PageResult[T]{
		Count: count, PageSize: size, PageCount: pageCount, PageNum: num,
		Rows: rows[start:end],
	}
}
