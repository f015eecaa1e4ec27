package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage/sqlite"
)

func machineFixture(id, name string) model.Machine {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Machine{
		ID:        id,
		Name:      name,
		CID:       3,
		CtxID:     7,
		CPUs:      2,
		MemoryMiB: 1024,
		Status:    model.MachineStatusCreated,
		CreatedAt: now,
		Config: model.MachineConfig{
			Name:      name,
			CPUs:      2,
			MemoryMiB: 1024,
			RootFS:    "/images/rootfs",
			Workdir:   "/work",
			Mounts:    map[string]string{"work": "/host/work"},
			PortMap:   []string{"8080:80", "2222:22"},
			Env:       map[string]string{"FOO": "bar"},
		},
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	m := machineFixture("id-1", "m-1")
	require.NoError(t, repo.CreateMachine(ctx, m))

	got, err := repo.GetMachine(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
	assert.Equal(t, m.CID, got.CID)
	assert.Equal(t, m.CtxID, got.CtxID)
	assert.Equal(t, m.Config.RootFS, got.Config.RootFS)
	assert.Equal(t, m.Config.Workdir, got.Config.Workdir)
	assert.Equal(t, m.Config.Mounts, got.Config.Mounts)
	assert.Equal(t, m.Config.PortMap, got.Config.PortMap)
	assert.Equal(t, m.Config.Env, got.Config.Env)
	assert.Equal(t, m.CreatedAt, got.CreatedAt)
	assert.Nil(t, got.ExitCode)

	got, err = repo.GetMachineByName(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
}

func TestRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	m := machineFixture("id-1", "m-1")
	require.NoError(t, repo.CreateMachine(ctx, m))

	now := time.Now().UTC().Truncate(time.Second)
	code := int32(42)
	m.Status = model.MachineStatusStopped
	m.ExitCode = &code
	m.StartedAt = &now
	m.StoppedAt = &now
	require.NoError(t, repo.UpdateMachine(ctx, m))

	got, err := repo.GetMachine(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, model.MachineStatusStopped, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, int32(42), *got.ExitCode)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, now, *got.StartedAt)
}

func TestRepositoryDuplicateName(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.CreateMachine(ctx, machineFixture("id-1", "m-1")))
	err := repo.CreateMachine(ctx, machineFixture("id-2", "m-1"))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}

func TestRepositoryListOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	old := machineFixture("id-1", "m-1")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	recent := machineFixture("id-2", "m-2")

	require.NoError(t, repo.CreateMachine(ctx, old))
	require.NoError(t, repo.CreateMachine(ctx, recent))

	machines, err := repo.ListMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "id-2", machines[0].ID)
}

func TestRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.GetMachine(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.GetMachineByName(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = repo.UpdateMachine(ctx, machineFixture("missing", "m"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = repo.DeleteMachine(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
