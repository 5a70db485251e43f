package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	acts "github.com/dshills/acts-go"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed acts.Store for production,
// multi-worker deployments (spec.md §2 component 10, §6).
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
// Example: user:pass@tcp(127.0.0.1:3306)/acts?parseTime=true
type MySQLStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewMySQLStore opens a MySQL connection pool and migrates its schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id VARCHAR(191) PRIMARY KEY, name VARCHAR(255), ver VARCHAR(64), size INT,
			data LONGBLOB, created_at DATETIME(6), updated_at DATETIME(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS procs (
			id VARCHAR(191) PRIMARY KEY, mid VARCHAR(191), name VARCHAR(255), state INT,
			env LONGTEXT, outputs LONGTEXT, start_time DATETIME(6), end_time DATETIME(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS tasks (
			pid VARCHAR(191), tid VARCHAR(191), node_ref VARCHAR(191), kind INT, prev VARCHAR(191),
			name VARCHAR(255), state INT, data LONGTEXT, err TEXT,
			start_time DATETIME(6), end_time DATETIME(6), hooks LONGTEXT,
			PRIMARY KEY (pid, tid)
		) ENGINE=InnoDB`,
		`CREATE INDEX idx_tasks_pid ON tasks(pid)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(191) PRIMARY KEY, pid VARCHAR(191), tid VARCHAR(191), uid VARCHAR(191),
			msg_key VARCHAR(191), tag VARCHAR(191), state INT, inputs LONGTEXT, outputs LONGTEXT,
			created_at DATETIME(6), updated_at DATETIME(6)
		) ENGINE=InnoDB`,
		`CREATE INDEX idx_messages_task ON messages(pid, tid)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(191) PRIMARY KEY, name VARCHAR(191), mid VARCHAR(191), ver VARCHAR(64),
			uses VARCHAR(191), params LONGTEXT, created_at DATETIME(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS packages (
			id VARCHAR(191) PRIMARY KEY, catalog INT, run_as INT,
			resources LONGBLOB, schema_data LONGBLOB, version VARCHAR(64), built_in BOOL,
			created_at DATETIME(6), updated_at DATETIME(6)
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			var mysqlErr interface{ Number() uint16 }
			if errors.As(err, &mysqlErr) && mysqlErr.Number() == 1061 {
				continue // duplicate index on a rerun
			}
			return err
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *MySQLStore) SaveModel(ctx context.Context, r acts.ModelRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (id, name, ver, size, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name=VALUES(name), ver=VALUES(ver), size=VALUES(size),
			data=VALUES(data), updated_at=VALUES(updated_at)
	`, r.ID, r.Name, r.Ver, r.Size, r.Data, r.Created, r.Updated)
	return err
}

func (s *MySQLStore) LoadModel(ctx context.Context, id string) (acts.ModelRecord, error) {
	var r acts.ModelRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, ver, size, data, created_at, updated_at FROM models WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Ver, &r.Size, &r.Data, &r.Created, &r.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.ModelRecord{}, acts.ErrNotFound
	}
	return r, err
}

func (s *MySQLStore) QueryModels(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.ModelRecord], error) {
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

func (s *MySQLStore) SaveProc(ctx context.Context, r acts.ProcRecord) error {
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
		ON DUPLICATE KEY UPDATE mid=VALUES(mid), name=VALUES(name), state=VALUES(state),
			env=VALUES(env), outputs=VALUES(outputs), end_time=VALUES(end_time)
	`, r.ID, r.MID, r.Name, r.State, string(env), string(outputs), r.Start, r.End)
	return err
}

func (s *MySQLStore) LoadProc(ctx context.Context, id string) (acts.ProcRecord, error) {
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

func (s *MySQLStore) QueryProcs(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.ProcRecord], error) {
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

func (s *MySQLStore) SaveTask(ctx context.Context, r acts.TaskRecord) error {
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
		ON DUPLICATE KEY UPDATE node_ref=VALUES(node_ref), kind=VALUES(kind), prev=VALUES(prev),
			name=VALUES(name), state=VALUES(state), data=VALUES(data),
			err=VALUES(err), end_time=VALUES(end_time), hooks=VALUES(hooks)
	`, r.PID, r.ID, r.NodeRef, r.Kind, r.Prev, r.Name, r.State, string(data), r.Err, r.Start, r.End, string(hooks))
	return err
}

func (s *MySQLStore) LoadTask(ctx context.Context, pid, tid string) (acts.TaskRecord, error) {
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

func (s *MySQLStore) LoadTasksByPID(ctx context.Context, pid string) ([]acts.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, node_ref, kind, prev, name, state, data, err, start_time, end_time, hooks
		FROM tasks WHERE pid = ?
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

func (s *MySQLStore) QueryTasks(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.TaskRecord], error) {
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

func (s *MySQLStore) SaveMessage(ctx context.Context, msg acts.Message) error {
	inputs, err := json.Marshal(msg.Inputs)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(msg.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, pid, tid, uid, msg_key, tag, state, inputs, outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE uid=VALUES(uid), state=VALUES(state), inputs=VALUES(inputs),
			outputs=VALUES(outputs), updated_at=VALUES(updated_at)
	`, msg.ID, msg.PID, msg.TID, msg.UID, msg.Key, msg.Tag, msg.State, string(inputs), string(outputs), msg.Created, msg.Updated)
	return err
}

func (s *MySQLStore) LoadMessage(ctx context.Context, id string) (acts.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pid, tid, uid, msg_key, tag, state, inputs, outputs, created_at, updated_at
		FROM messages WHERE id = ?
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.Message{}, acts.ErrNotFound
	}
	return msg, err
}

func (s *MySQLStore) LoadMessageByTask(ctx context.Context, pid, tid string) (acts.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pid, tid, uid, msg_key, tag, state, inputs, outputs, created_at, updated_at
		FROM messages WHERE pid = ? AND tid = ? ORDER BY updated_at DESC LIMIT 1
	`, pid, tid)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.Message{}, acts.ErrNotFound
	}
	return msg, err
}

func (s *MySQLStore) QueryMessages(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.Message], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return acts.PageResult[acts.Message]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pid, tid, uid, msg_key, tag, state, inputs, outputs, created_at, updated_at
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

func (s *MySQLStore) SaveEvent(ctx context.Context, e acts.EventRecord) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, name, mid, ver, uses, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id=id
	`, e.ID, e.Name, e.MID, e.Ver, e.Uses, string(params), e.Created)
	return err
}

func (s *MySQLStore) QueryEvents(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.EventRecord], error) {
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

func (s *MySQLStore) SavePackage(ctx context.Context, p acts.PackageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packages (id, catalog, run_as, resources, schema_data, version, built_in, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE catalog=VALUES(catalog), run_as=VALUES(run_as),
			resources=VALUES(resources), schema_data=VALUES(schema_data),
			version=VALUES(version), updated_at=VALUES(updated_at)
	`, p.ID, p.Catalog, p.RunAs, p.Resources, p.Schema, p.Version, p.BuiltIn, p.Created, p.Updated)
	return err
}

func (s *MySQLStore) LoadPackage(ctx context.Context, id string) (acts.PackageRecord, error) {
	var p acts.PackageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, catalog, run_as, resources, schema_data, version, built_in, created_at, updated_at
		FROM packages WHERE id = ?
	`, id).Scan(&p.ID, &p.Catalog, &p.RunAs, &p.Resources, &p.Schema, &p.Version, &p.BuiltIn, &p.Created, &p.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acts.PackageRecord{}, acts.ErrNotFound
	}
	return p, err
}

func (s *MySQLStore) QueryPackages(ctx context.Context, q acts.PageQuery) (acts.PageResult[acts.PackageRecord], error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&count); err != nil {
		return acts.PageResult[acts.PackageRecord]{}, err
	}
	size, num, offset := pageWindow(q, count)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, catalog, run_as, resources, schema_data, version, built_in, created_at, updated_at
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
