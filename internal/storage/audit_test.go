package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pulseox/internal/storage/models"
)

func TestMemoryAudit_RecordAndList(t *testing.T) {
	a := NewMemoryAudit(3)
	ctx := context.Background()
	for i, cmd := range []string{"check_com", "set_threshold", "check_com", "set_rtc"} {
		rec := &models.CommandLog{Command: cmd, Result: "ok", CreatedAt: time.Unix(int64(100+i), 0)}
		require.NoError(t, a.Record(ctx, rec))
		assert.Equal(t, int64(i+1), rec.ID)
	}

	all, err := a.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "set_rtc", all[0].Command)
	assert.Equal(t, "set_threshold", all[2].Command)

	only, err := a.List(ctx, ListFilter{Command: "check_com"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, int64(3), only[0].ID)

	recent, err := a.List(ctx, ListFilter{Since: time.Unix(103, 0)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestListFilter_Normalize(t *testing.T) {
	assert.Equal(t, 50, ListFilter{}.Normalize().Limit)
	assert.Equal(t, 50, ListFilter{Limit: 10000}.Normalize().Limit)
	assert.Equal(t, 7, ListFilter{Limit: 7}.Normalize().Limit)
}
