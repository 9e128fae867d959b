package chart

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crashmap/internal/aggregate"
	"github.com/sells-group/crashmap/internal/incident"
)

func TestRenderReport(t *testing.T) {
	shares := []aggregate.Share{
		{Label: "Injury", Count: 3, Percentage: 60},
		{Label: "NoInjury", Count: 2, Percentage: 40},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, "Bike incidents", incident.FieldSeverity, shares))

	out := buf.String()
	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "Bike incidents")
	assert.Contains(t, out, "Injury")
	assert.Contains(t, out, "NoInjury")
	assert.Contains(t, out, "5 records")
	assert.NotContains(t, out, EmptySubtitle)
}

func TestRenderReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, "Weather", incident.FieldWeather, []aggregate.Share{}))
	assert.Contains(t, buf.String(), EmptySubtitle)
}
