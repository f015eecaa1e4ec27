package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const machineColumns = `
	id, name, cid, ctx_id,
	cpus, memory_mib, status,
	rootfs_path, workdir, mounts, port_map, env,
	exit_code, created_at, started_at, stopped_at
`

// CreateMachine creates a new machine in the repository.
func (r *Repository) CreateMachine(ctx context.Context, m model.Machine) error {
	mounts, portMap, env, err := marshalConfigFields(m.Config)
	if err != nil {
		return err
	}

	var startedAt, stoppedAt *int64
	if m.StartedAt != nil {
		u := m.StartedAt.Unix()
		startedAt = &u
	}
	if m.StoppedAt != nil {
		u := m.StoppedAt.Unix()
		stoppedAt = &u
	}

	query := `
		INSERT INTO machines (` + machineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		m.ID,
		m.Name,
		m.CID,
		m.CtxID,
		m.CPUs,
		m.MemoryMiB,
		m.Status,
		m.Config.RootFS,
		m.Config.Workdir,
		mounts,
		portMap,
		env,
		m.ExitCode,
		m.CreatedAt.Unix(),
		startedAt,
		stoppedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: machines.") {
			return fmt.Errorf("machine already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert machine: %w", err)
	}

	r.logger.Debugf("Created machine in repository: %s", m.ID)
	return nil
}

// GetMachine retrieves a machine by ID.
func (r *Repository) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE id = ?`

	m, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("machine %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query machine: %w", err)
	}

	return m, nil
}

// GetMachineByName retrieves a machine by name.
func (r *Repository) GetMachineByName(ctx context.Context, name string) (*model.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE name = ?`

	m, err := r.scanOne(ctx, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("machine with name %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query machine: %w", err)
	}

	return m, nil
}

// ListMachines returns all machines, newest first.
func (r *Repository) ListMachines(ctx context.Context) ([]model.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query machines: %w", err)
	}
	defer rows.Close()

	var machines []model.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan machine: %w", err)
		}
		machines = append(machines, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate machines: %w", err)
	}

	return machines, nil
}

// UpdateMachine updates an existing machine.
func (r *Repository) UpdateMachine(ctx context.Context, m model.Machine) error {
	var startedAt, stoppedAt *int64
	if m.StartedAt != nil {
		u := m.StartedAt.Unix()
		startedAt = &u
	}
	if m.StoppedAt != nil {
		u := m.StoppedAt.Unix()
		stoppedAt = &u
	}

	query := `
		UPDATE machines
		SET status = ?, exit_code = ?, started_at = ?, stopped_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, m.Status, m.ExitCode, startedAt, stoppedAt, m.ID)
	if err != nil {
		return fmt.Errorf("could not update machine: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("machine %s: %w", m.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated machine in repository: %s", m.ID)
	return nil
}

// DeleteMachine deletes a machine by ID.
func (r *Repository) DeleteMachine(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM machines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete machine: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("machine %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted machine from repository: %s", id)
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (*model.Machine, error) {
	return scanMachine(r.db.QueryRowContext(ctx, query, arg))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMachine(row rowScanner) (*model.Machine, error) {
	var (
		m                    model.Machine
		mounts, portMap, env string
		createdAt            int64
		startedAt, stoppedAt *int64
	)

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.CID,
		&m.CtxID,
		&m.CPUs,
		&m.MemoryMiB,
		&m.Status,
		&m.Config.RootFS,
		&m.Config.Workdir,
		&mounts,
		&portMap,
		&env,
		&m.ExitCode,
		&createdAt,
		&startedAt,
		&stoppedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Config.Name = m.Name
	m.Config.CPUs = m.CPUs
	m.Config.MemoryMiB = m.MemoryMiB

	if err := json.Unmarshal([]byte(mounts), &m.Config.Mounts); err != nil {
		return nil, fmt.Errorf("could not unmarshal mounts: %w", err)
	}
	if err := json.Unmarshal([]byte(portMap), &m.Config.PortMap); err != nil {
		return nil, fmt.Errorf("could not unmarshal port map: %w", err)
	}
	if err := json.Unmarshal([]byte(env), &m.Config.Env); err != nil {
		return nil, fmt.Errorf("could not unmarshal env: %w", err)
	}

	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	if startedAt != nil {
		t := time.Unix(*startedAt, 0).UTC()
		m.StartedAt = &t
	}
	if stoppedAt != nil {
		t := time.Unix(*stoppedAt, 0).UTC()
		m.StoppedAt = &t
	}

	return &m, nil
}

func marshalConfigFields(cfg model.MachineConfig) (mounts, portMap, env string, err error) {
	mountsB, err := json.Marshal(orEmptyMap(cfg.Mounts))
	if err != nil {
		return "", "", "", fmt.Errorf("could not marshal mounts: %w", err)
	}
	portMapB, err := json.Marshal(orEmptySlice(cfg.PortMap))
	if err != nil {
		return "", "", "", fmt.Errorf("could not marshal port map: %w", err)
	}
	envB, err := json.Marshal(orEmptyMap(cfg.Env))
	if err != nil {
		return "", "", "", fmt.Errorf("could not marshal env: %w", err)
	}

	return string(mountsB), string(portMapB), string(envB), nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
