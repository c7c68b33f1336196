package status

import (
	"testing"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "svc-1", Key("svc-1", ""))
	assert.Equal(t, "svc-1-db", Key("svc-1", "db"))
}

func TestTracker_FirstObservationIsNotAChange(t *testing.T) {
	tr := NewTracker()

	obs := tr.Observe("svc-1", domain.StatusDown)
	assert.True(t, obs.First)
	assert.False(t, obs.Changed)
}

func TestTracker_TransitionSequence(t *testing.T) {
	tr := NewTracker()

	sequence := []struct {
		status      domain.HealthStatus
		wantChanged bool
		wantPrev    domain.HealthStatus
	}{
		{domain.StatusHealthy, false, ""},
		{domain.StatusHealthy, false, domain.StatusHealthy},
		{domain.StatusDown, true, domain.StatusHealthy},
		{domain.StatusDown, false, domain.StatusDown},
		{domain.StatusHealthy, true, domain.StatusDown},
	}

	for i, step := range sequence {
		obs := tr.Observe("svc-1", step.status)
		assert.Equal(t, step.wantChanged, obs.Changed, "step %d", i)
		if obs.Changed {
			assert.Equal(t, step.wantPrev, obs.Previous, "step %d", i)
		}
	}
}

func TestTracker_KeysAreIndependent(t *testing.T) {
	tr := NewTracker()

	tr.Observe("svc-1-db", domain.StatusHealthy)
	tr.Observe("svc-1-auth", domain.StatusHealthy)

	obs := tr.Observe("svc-1-db", domain.StatusDown)
	assert.True(t, obs.Changed)

	obs = tr.Observe("svc-1-auth", domain.StatusHealthy)
	assert.False(t, obs.Changed)
}

func TestTracker_Last(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Last("svc-1")
	require.False(t, ok)

	tr.Observe("svc-1", domain.StatusDegraded)

	last, ok := tr.Last("svc-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDegraded, last)
}
