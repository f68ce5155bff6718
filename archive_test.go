package lazarus_test

import (
	"context"
	"testing"
	"time"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiverIsIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	lc := w.lifecycle()
	citizen := w.citizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := w.entity(t, "bomberos@lazarus.test")

	incident, err := lc.Create(ctx, citizen, fireReport(9.93, -84.07))
	require.NoError(t, err)

	fresh := lazarus.NewArchiver(w.repo).WithActivitySink(w.sink)
	report, err := fresh.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Archived, "new incidents are younger than the max age")

	later := lazarus.NewArchiver(w.repo).
		WithActivitySink(w.sink).
		WithClock(func() time.Time { return time.Now().Add(72 * time.Hour) })

	report, err = later.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	assert.Equal(t, incident.ID, report.IncidentIDs[0])

	report, err = later.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Archived)
	assert.Empty(t, report.IncidentIDs)

	archived, err := lc.Get(ctx, incident.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())
	assert.Equal(t, lazarus.IncidentStatusNew, archived.Status)

	_, err = lc.Update(ctx, entity, incident.ID, lazarus.IncidentPatch{Status: statusPtr(lazarus.IncidentStatusInProgress)})
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeTerminalState))

	listed, err := lc.List(ctx, lazarus.IncidentFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = lc.List(ctx, lazarus.IncidentFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	nearby, err := lc.Nearby(ctx, 9.93, -84.07, 5)
	require.NoError(t, err)
	assert.Empty(t, nearby)

	assert.Len(t, w.sink.ofType(lazarus.ActivityEventIncidentArchived), 1)
}

func TestArchiveScheduler(t *testing.T) {
	w := newWorld(t)

	_, err := lazarus.NewArchiveScheduler(lazarus.NewArchiver(w.repo), "every tuesday", nil)
	assert.True(t, lazarus.IsValidation(err))

	scheduler, err := lazarus.NewArchiveScheduler(lazarus.NewArchiver(w.repo), "", nil)
	require.NoError(t, err)

	from := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), scheduler.Next(from))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, scheduler.StartWithContext(ctx))
	assert.True(t, scheduler.IsRunning())
	assert.Error(t, scheduler.StartWithContext(ctx))

	report, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Archived)

	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, scheduler.StopWithContext(stopCtx))
	assert.False(t, scheduler.IsRunning())
}
