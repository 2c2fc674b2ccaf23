package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/service"
)

func TestWriteBatchList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeBatchList(&out, nil))
		assert.Contains(t, out.String(), "No batches stored yet")
	})

	t.Run("batches", func(t *testing.T) {
		var out bytes.Buffer
		batches := []service.BatchInfo{
			{ID: "batch-2", RubricID: "r1", CreatedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), ResultCount: 12, FailedCount: 1},
			{ID: "batch-1", RubricID: "r1", CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), ResultCount: 3},
		}
		require.NoError(t, writeBatchList(&out, batches))

		text := out.String()
		assert.Contains(t, text, "batch-2")
		assert.Contains(t, text, "12 graded")
		assert.Contains(t, text, "1 failed")
		assert.Contains(t, text, "batch-1")
		assert.Less(t, bytes.Index(out.Bytes(), []byte("batch-2")), bytes.Index(out.Bytes(), []byte("batch-1")))
	})
}

func TestProgressReporter(t *testing.T) {
	var out bytes.Buffer
	report := progressReporter(&out, 2)

	report(1, 2, model.GradingResult{StudentName: "Ana", Percentage: 80})
	report(2, 2, model.GradingResult{StudentName: "Ben", Error: "timeout"})

	assert.Contains(t, out.String(), "2/2")
}

func TestSubLabel(t *testing.T) {
	assert.Equal(t, "", subLabel(""))
	assert.Equal(t, " (b)", subLabel("b"))
	assert.Equal(t, []int{1, 4}, pageNumbers([]int{0, 3}))
}
