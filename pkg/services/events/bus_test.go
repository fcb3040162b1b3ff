package events

import (
	"context"
	"testing"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/stretchr/testify/assert"
)

func TestBus_Publish(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(func(_ context.Context, e domain.JobEvent) { got = append(got, "first:"+e.JobID) })
	bus.Subscribe(func(_ context.Context, e domain.JobEvent) { panic("broken subscriber") })
	bus.Subscribe(func(_ context.Context, e domain.JobEvent) { got = append(got, "third:"+e.JobID) })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.JobEvent{JobID: "job-1", Status: domain.JobStatusCompleted})
	})
	assert.Equal(t, []string{"first:job-1", "third:job-1"}, got)
}
