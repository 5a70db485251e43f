package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	acts "github.com/dshills/acts-go"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed acts.Store for single-process
// deployments and local development (spec.md §2 component 10, §6).
//
// Schema: models, procs, tasks, messages, events, packages — one table
// per Store entity family, each keyed the way the in-memory paging
// queries assume (models/procs/packages by id; tasks by pid+tid).
//
// SQLiteStore uses WAL mode for concurrent reads and a single writer
// connection, matching SQLite's own concurrency model.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path
// and migrates its schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY, name TEXT, ver TEXT, size INTEGER,
			data BLOB, created_at TIMESTAMP, updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS procs (
			id TEXT PRIMARY KEY, mid TEXT, name TEXT, state INTEGER,
			env TEXT, outputs TEXT, start_time TIMESTAMP, end_time TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			pid TEXT, tid TEXT, node_ref TEXT, kind INTEGER, prev TEXT,
			name TEXT, state INTEGER, data TEXT, err TEXT,
			start_time TIMESTAMP, end_time TIMESTAMP, hooks TEXT,
			PRIMARY KEY (pid, tid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_pid ON tasks(pid)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY, pid TEXT, tid TEXT, uid TEXT, key TEXT,
			tag TEXT, state INTEGER, inputs TEXT, outputs TEXT,
			created_at TIMESTAMP, updated_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_task ON messages(pid, tid)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY, name TEXT, mid TEXT, ver TEXT, uses TEXT,
			params TEXT, created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS packages (
			id TEXT PRIMARY KEY, catalog INTEGER, run_as INTEGER,
			resources BLOB, schema BLOB, version TEXT, built_in INTEGER,
			created_at TIMESTAMP, updated_at TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) SaveModel(ctx context.Context, r acts.ModelRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (id, name, ver, size, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, ver=excluded.ver, size=excluded.size,
			data=excluded.data, updated_at=excluded.updated_at
	`, r.ID, r.Name, r.Ver, r.Size, r.Data, r.Created, r.Updated)
	return err
}

func (s *SQLiteStore) LoadModel(ctx context.Context, id string) (acts.ModelRecord, error) {
	var r acts.ModelRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, ver, size, data, created_at, updated_at FROM models WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Ver, &r.Size, &r.Data, &r.Created, &r.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.ModelRecord{}, acts.ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) QueryModels(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.ModelRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models`).Scan(&count); err != nil {
		return acts.PageResult[acts.ModelRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ver, size, data, created_at, updated_at
		FROM models ORDER BY id LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.ModelRecord]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.ModelRecord
	for rows.Next() {
		var r acts.ModelRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Ver, &r.Size, &r.Data, &r.Created, &r.Updated); err != nil {
			return acts.PageResult[acts.ModelRecord]{}, err
		}
		out = append(out, r)
	}
	return pageResult(out, count, size, num), rows.Err()
}

func (s *SQLiteStore) SaveProc(ctx context.Context, r acts.ProcRecord) error {
	env, err := json.Marshal(r.Env)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procs (id, mid, name, state, env, outputs, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mid=excluded.mid, name=excluded.name, state=excluded.state,
			env=excluded.env, outputs=excluded.outputs, end_time=excluded.end_time
	`, r.ID, r.MID, r.Name, r.State, string(env), string(outputs), r.Start, r.End)
	return err
}

func (s *SQLiteStore) LoadProc(ctx context.Context, id string) (acts.ProcRecord, error) {
	var r acts.ProcRecord
	var env, outputs string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mid, name, state, env, outputs, start_time, end_time FROM procs WHERE id = ?
	`, id).Scan(&r.ID, &r.MID, &r.Name, &r.State, &env, &outputs, &r.Start, &r.End)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.ProcRecord{}, acts.ErrNotFound
	}
	if err != nil {
		return acts.ProcRecord{}, err
	}
	_ = json.Unmarshal([]byte(env), &r.Env)
	_ = json.Unmarshal([]byte(outputs), &r.Outputs)
	return r, nil
}

func (s *SQLiteStore) QueryProcs(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.ProcRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM procs`).Scan(&count); err != nil {
		return acts.PageResult[acts.ProcRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mid, name, state, env, outputs, start_time, end_time
		FROM procs ORDER BY id LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.ProcRecord]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.ProcRecord
	for rows.Next() {
		var r acts.ProcRecord
		var env, outputs string
		if err := rows.Scan(&r.ID, &r.MID, &r.Name, &r.State, &env, &outputs, &r.Start, &r.End); err != nil {
			return acts.PageResult[acts.ProcRecord]{}, err
		}
		_ = json.Unmarshal([]byte(env), &r.Env)
		_ = json.Unmarshal([]byte(outputs), &r.Outputs)
		out = append(out, r)
	}
	return pageResult(out, count, size, num), rows.Err()
}

func (s *SQLiteStore) SaveTask(ctx context.Context, r acts.TaskRecord) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return err
	}
	hooks, err := json.Marshal(r.Hooks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (pid, tid, node_ref, kind, prev, name, state, data, err, start_time, end_time, hooks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid, tid) DO UPDATE SET
			node_ref=excluded.node_ref, kind=excluded.kind, prev=excluded.prev,
			name=excluded.name, state=excluded.state, data=excluded.data,
			err=excluded.err, end_time=excluded.end_time, hooks=excluded.hooks
	`, r.PID, r.ID, r.NodeRef, r.Kind, r.Prev, r.Name, r.State, string(data), r.Err, r.Start, r.End, string(hooks))
	return err
}

func scanTask(row interface{ Scan(...any) error }) (acts.TaskRecord, error) {
	var r acts.TaskRecord
	var data, hooks string
	err := row.Scan(&r.PID, &r.ID, &r.NodeRef, &r.Kind, &r.Prev, &r.Name, &r.State, &data, &r.Err, &r.Start, &r.End, &hooks)
	if err != nil {
		return acts.TaskRecord{}, err
	}
	_ = json.Unmarshal([]byte(data), &r.Data)
	_ = json.Unmarshal([]byte(hooks), &r.Hooks)
	return r, nil
}

func (s *SQLiteStore) LoadTask(ctx context.Context, pid, tid string) (acts.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pid, tid, node_ref, kind, prev, name, state, data, err, start_time, end_time, hooks
		FROM tasks WHERE pid = ? AND tid = ?
	`, pid, tid)
	r, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.TaskRecord{}, acts.ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) LoadTasksByPID(ctx context.Context, pid string) ([]acts.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, node_ref, kind, prev, name, state, data, err, start_time, end_time, hooks
		FROM tasks WHERE pid = ? ORDER BY rowid
	`, pid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.TaskRecord
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QueryTasks(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.TaskRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return acts.PageResult[acts.TaskRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, node_ref, kind, prev, name, state, data, err, start_time, end_time, hooks
		FROM tasks ORDER BY pid, tid LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.TaskRecord]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.TaskRecord
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return acts.PageResult[acts.TaskRecord]{}, err
		}
		out = append(out, r)
	}
	return pageResult(out, count, size, num), rows.Err()
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg acts.Message) error {
	inputs, err := json.Marshal(msg.Inputs)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(msg.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, pid, tid, uid, key, tag, state, inputs, outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uid=excluded.uid, state=excluded.state, inputs=excluded.inputs,
			outputs=excluded.outputs, updated_at=excluded.updated_at
	`, msg.ID, msg.PID, msg.TID, msg.UID, msg.Key, msg.Tag, msg.State, string(inputs), string(outputs), msg.Created, msg.Updated)
	return err
}

func scanMessage(row interface{ Scan(...any) error }) (acts.Message, error) {
	var msg acts.Message
	var inputs, outputs string
	err := row.Scan(&msg.ID, &msg.PID, &msg.TID, &msg.UID, &msg.Key, &msg.Tag, &msg.State, &inputs, &outputs, &msg.Created, &msg.Updated)
	if err != nil {
		return acts.Message{}, err
	}
	_ = json.Unmarshal([]byte(inputs), &msg.Inputs)
	_ = json.Unmarshal([]byte(outputs), &msg.Outputs)
	return msg, nil
}

func (s *SQLiteStore) LoadMessage(ctx context.Context, id string) (acts.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pid, tid, uid, key, tag, state, inputs, outputs, created_at, updated_at
		FROM messages WHERE id = ?
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.Message{}, acts.ErrNotFound
	}
	return msg, err
}

func (s *SQLiteStore) LoadMessageByTask(ctx context.Context, pid, tid string) (acts.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pid, tid, uid, key, tag, state, inputs, outputs, created_at, updated_at
		FROM messages WHERE pid = ? AND tid = ? ORDER BY updated_at DESC LIMIT 1
	`, pid, tid)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.Message{}, acts.ErrNotFound
	}
	return msg, err
}

func (s *SQLiteStore) QueryMessages(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.Message], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return acts.PageResult[acts.Message]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pid, tid, uid, key, tag, state, inputs, outputs, created_at, updated_at
		FROM messages ORDER BY created_at LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.Message]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return acts.PageResult[acts.Message]{}, err
		}
		out = append(out, msg)
	}
	return pageResult(out, count, size, num), rows.Err()
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e acts.EventRecord) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, name, mid, ver, uses, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Name, e.MID, e.Ver, e.Uses, string(params), e.Created)
	return err
}

func (s *SQLiteStore) QueryEvents(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.EventRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return acts.PageResult[acts.EventRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mid, ver, uses, params, created_at
		FROM events ORDER BY created_at LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.EventRecord]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.EventRecord
	for rows.Next() {
		var e acts.EventRecord
		var params string
		if err := rows.Scan(&e.ID, &e.Name, &e.MID, &e.Ver, &e.Uses, &params, &e.Created); err != nil {
			return acts.PageResult[acts.EventRecord]{}, err
		}
		_ = json.Unmarshal([]byte(params), &e.Params)
		out = append(out, e)
	}
	return pageResult(out, count, size, num), rows.Err()
}

func (s *SQLiteStore) SavePackage(ctx context.Context, p acts.PackageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packages (id, catalog, run_as, resources, schema, version, built_in, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			catalog=excluded.catalog, run_as=excluded.run_as, resources=excluded.resources,
			schema=excluded.schema, version=excluded.version, updated_at=excluded.updated_at
	`, p.ID, p.Catalog, p.RunAs, p.Resources, p.Schema, p.Version, p.BuiltIn, p.Created, p.Updated)
	return err
}

func (s *SQLiteStore) LoadPackage(ctx context.Context, id string) (acts.PackageRecord, error) {
	var p acts.PackageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, catalog, run_as, resources, schema, version, built_in, created_at, updated_at
		FROM packages WHERE id = ?
	`, id).Scan(&p.ID, &p.Catalog, &p.RunAs, &p.Resources, &p.Schema, &p.Version, &p.BuiltIn, &p.Created, &p.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.PackageRecord{}, acts.ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) QueryPackages(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.PackageRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&count); err != nil {
		return acts.PageResult[acts.PackageRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, catalog, run_as, resources, schema, version, built_in, created_at, updated_at
		FROM packages ORDER BY id LIMIT ? OFFSET ?
	`, size, offset)
	if err != nil {
		return acts.PageResult[acts.PackageRecord]{}, err
	}
	defer func() { _ = rows.Close() }()
	var out []acts.PackageRecord
	for rows.Next() {
		var p acts.PackageRecord
		if err := rows.Scan(&p.ID, &p.Catalog, &p.RunAs, &p.Resources, &p.Schema, &p.Version, &p.BuiltIn, &p.Created, &p.Updated); err != nil {
			return acts.PageResult[acts.PackageRecord]{}, err
		}
		out = append(out, p)
	}
	return pageResult(out, count, size, num), rows.Err()
}

// pageWindow normalizes a PageQuery into (size, num, offset), matching the
// MemoryStore defaults (size 50, num 1).
func pageWindow(q acts.PageQuery, count int) (size, num, offset int) {
	size = q.PageSize
	if size <= 0 {
		size = 50
	}
	num = q.PageNum
	if num <= 0 {
		num = 1
	}
	offset = (num - 1) * size
	if offset > count {
		offset = count
	}
	return size, num, offset
}

func pageResult[T any](rows []T, count, size, num int) acts.PageResult[T] {
	pageCount := (count + size - 1) / size
	return acts.PageResult[T]{Count: count, PageSize: size, PageCount: pageCount, PageNum: num, Rows: rows}
}
