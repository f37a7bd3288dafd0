package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockedStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	store, mockPool := newMockedStore(t)

	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS exchanges")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("should insert one row per exchange", func(t *testing.T) {
		store, mockPool := newMockedStore(t)

		e := Exchange{
			ID:        uuid.NewString(),
			SessionID: "default",
			Question:  "what is the capital of France?",
			Answer:    "Paris.",
			Attempts:  1,
			Duration:  2300 * time.Millisecond,
			AskedAt:   time.Now().UTC(),
		}

		mockPool.ExpectExec(regexp.QuoteMeta("INSERT INTO exchanges")).
			WithArgs(e.ID, e.SessionID, e.Question, e.Answer, e.Attempts, int64(2300), e.AskedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Append(ctx, e))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate insert failure", func(t *testing.T) {
		store, mockPool := newMockedStore(t)

		insertErr := errors.New("connection reset")
		mockPool.ExpectExec(regexp.QuoteMeta("INSERT INTO exchanges")).
			WillReturnError(insertErr)

		err := store.Append(ctx, Exchange{ID: uuid.NewString(), AskedAt: time.Now()})
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
	})
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	store, mockPool := newMockedStore(t)

	id := uuid.NewString()
	askedAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "session_id", "question", "answer", "attempts", "duration_ms", "asked_at"}).
		AddRow(id, "default", "q1", "a1", 2, int64(1500), askedAt)

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, question, answer, attempts, duration_ms, asked_at")).
		WithArgs("default", 10).
		WillReturnRows(rows)

	got, err := store.Recent(ctx, "default", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, 2, got[0].Attempts)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.Equal(t, askedAt, got[0].AskedAt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPurgeBefore(t *testing.T) {
	store, mockPool := newMockedStore(t)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mockPool.ExpectExec(regexp.QuoteMeta("DELETE FROM exchanges")).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	n, err := store.PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
