package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollup(t *testing.T) {
	healthy := []ServiceHealth{
		{Name: "postgresql", Status: "healthy"},
		{Name: "redis", Status: "healthy"},
	}
	assert.Equal(t, "healthy", rollup(healthy))

	degraded := append(healthy, ServiceHealth{Name: "embedder", Status: "degraded"})
	assert.Equal(t, "degraded", rollup(degraded))

	unhealthy := append(degraded, ServiceHealth{Name: "postgresql", Status: "unhealthy"})
	assert.Equal(t, "unhealthy", rollup(unhealthy))
}

func TestOverallHealthSummary(t *testing.T) {
	overall := OverallHealth{
		Status: "degraded",
		Services: []ServiceHealth{
			{Name: "postgresql", Status: "healthy", ResponseTime: 3},
			{Name: "redis", Status: "healthy", ResponseTime: 1},
			{Name: "embedder", Status: "degraded", Error: "connection refused"},
		},
	}

	summary := overall.Summary()

	assert.Equal(t, "degraded", summary.Status)
	assert.Equal(t, "fixmate-backend", summary.Service)
	assert.NotEmpty(t, summary.Timestamp)
	assert.Equal(t, map[string]string{
		"postgresql": "healthy",
		"redis":      "healthy",
		"embedder":   "degraded",
	}, summary.Services)
}
