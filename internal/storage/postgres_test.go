package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradeflow/internal/rubric"
)

// TestPostgresStorage runs against a real server when GRADE_TEST_POSTGRES_DSN is set.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("GRADE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GRADE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	store, err := NewPostgresStorage(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	rubricID, err := store.SaveRubric(ctx, rubric.NormalizeJSON([]byte(storedRubric)))
	require.NoError(t, err)
	batchID, err := store.CreateBatch(ctx, rubricID)
	require.NoError(t, err)

	require.NoError(t, store.SaveResult(ctx, batchID, sampleResult("maya", 2)))
	require.NoError(t, store.SaveResult(ctx, batchID, sampleResult("omer", 4)))

	results, err := store.GetResults(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "maya", results[0].StudentName)
	assert.Equal(t, "omer", results[1].StudentName)
}

func TestNewPostgresStorage_RequiresDSN(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyString)
}
