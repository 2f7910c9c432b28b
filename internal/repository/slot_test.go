package repository

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kindrid-api/pkg/config"
	"github.com/noah-isme/kindrid-api/pkg/database"
	"github.com/noah-isme/kindrid-api/pkg/storage"
)

func newSlotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSQLSlotReadMissingRow(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM kindrid_slots")).
		WithArgs("kindrid-photos").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	payload, err := NewSQLSlot(db, "kindrid-photos").Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSlotWriteUpserts(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kindrid_slots")+".*ON CONFLICT").
		WithArgs("kindrid-photos", `[]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM kindrid_slots")).
		WithArgs("kindrid-photos").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`[]`)))

	slot := NewSQLSlot(db, "kindrid-photos")
	require.NoError(t, slot.Write(context.Background(), []byte(`[]`)))
	payload, err := slot.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSlotAgainstSQLiteFile(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	slot := NewSQLSlot(db, "kindrid-photos")
	require.NoError(t, slot.EnsureSchema(ctx))

	payload, err := slot.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, slot.Write(ctx, []byte(`[{"id":"a"}]`)))
	require.NoError(t, slot.Write(ctx, []byte(`[{"id":"b"}]`)))

	payload, err = slot.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"b"}]`, string(payload))
}

func TestFileSlotRoundTrip(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	slot, err := NewFileSlot(files, "kindrid-photos")
	require.NoError(t, err)

	payload, err := slot.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, slot.Write(context.Background(), []byte(`[]`)))
	payload, err = slot.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), payload)
	assert.True(t, files.Exists("slots/kindrid-photos.json"))
}

type redisStub struct {
	redis.Cmdable
	values map[string]string
}

func (r *redisStub) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := r.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (r *redisStub) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	r.values[key] = string(value.([]byte))
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func TestRedisSlotUsesPrefixedKey(t *testing.T) {
	stub := &redisStub{values: map[string]string{}}
	slot := NewRedisSlot(stub, "kindrid:slot:", "kindrid-photos")

	payload, err := slot.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, slot.Write(context.Background(), []byte(`[]`)))
	assert.Equal(t, `[]`, stub.values["kindrid:slot:kindrid-photos"])
}

func TestOpenSlotMemoryAndFile(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	cfg := &config.Config{Slot: config.SlotConfig{Backend: config.SlotBackendMemory, Name: "kindrid-photos"}}

	slot, closeFn, err := OpenSlot(context.Background(), cfg, files, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySlot{}, slot)
	require.NoError(t, closeFn())

	cfg.Slot.Backend = config.SlotBackendFile
	slot, _, err = OpenSlot(context.Background(), cfg, files, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSlot{}, slot)

	cfg.Slot.Backend = "etcd"
	_, _, err = OpenSlot(context.Background(), cfg, files, nil)
	require.Error(t, err)
}

func TestOpenSlotSQLite(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	cfg := &config.Config{Slot: config.SlotConfig{
		Backend:    config.SlotBackendSQLite,
		Name:       "kindrid-photos",
		SQLitePath: filepath.Join(t.TempDir(), "kindrid.db"),
	}}

	slot, closeFn, err := OpenSlot(context.Background(), cfg, files, nil)
	require.NoError(t, err)
	defer closeFn() //nolint:errcheck
	assert.IsType(t, &SQLSlot{}, slot)
}
