package findsimilar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}

	m.RecordInsert(10, 2*time.Millisecond, nil)
	m.RecordInsert(5, 4*time.Millisecond, errors.New("boom"))
	m.RecordBatchInsert(8, 2, 6*time.Millisecond)
	m.RecordBatchInsert(4, 0, 2*time.Millisecond)
	m.RecordQuery(3, 3*time.Millisecond, nil)
	m.RecordSnapshot(time.Millisecond, nil)
	m.RecordSnapshot(time.Millisecond, errors.New("boom"))

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.InsertCount)
	assert.Equal(t, int64(1), stats.InsertErrors)
	assert.Equal(t, int64(15), stats.FingerprintCount)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), stats.InsertAvgNanos)
	assert.Equal(t, int64(2), stats.BatchInsertCount)
	assert.Equal(t, int64(12), stats.BatchInsertItems)
	assert.Equal(t, int64(2), stats.BatchInsertFailed)
	assert.Equal(t, (4 * time.Millisecond).Nanoseconds(), stats.BatchInsertAvgNanos)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), stats.QueryAvgNanos)
	assert.Equal(t, int64(2), stats.SnapshotCount)
	assert.Equal(t, int64(1), stats.SnapshotErrors)
}

func TestBasicMetricsCollectorEmpty(t *testing.T) {
	m := &BasicMetricsCollector{}

	stats := m.GetStats()
	assert.Zero(t, stats.InsertAvgNanos)
	assert.Zero(t, stats.BatchInsertAvgNanos)
	assert.Zero(t, stats.QueryAvgNanos)
}
