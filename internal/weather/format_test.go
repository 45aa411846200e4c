package weather

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleForecast(t *testing.T) Forecast {
	t.Helper()
	var p forecastPayload
	require.NoError(t, json.Unmarshal([]byte(forecastJSON), &p))
	return p.toForecast()
}

func TestFormatCurrent(t *testing.T) {
	var p currentPayload
	require.NoError(t, json.Unmarshal([]byte(currentJSON), &p))

	got := FormatCurrent(p.toCurrent())
	want := "Weather in Kyiv, UA:\n" +
		"Overcast clouds, 12°C (feels like 9°C)\n" +
		"Humidity: 71%\n" +
		"Wind: 3.4 m/s"
	assert.Equal(t, want, got)
}

func TestFormatEvening_UsesCityLocalTime(t *testing.T) {
	got := FormatEvening(sampleForecast(t))
	lines := strings.Split(got, "\n")

	require.Len(t, lines, 1+eveningSlots)
	assert.Equal(t, "Forecast until evening for Kyiv:", lines[0])
	// 09:00 UTC is 11:00 in Kyiv.
	assert.Equal(t, "- 11:00: 10°C, light rain", lines[1])
	assert.Equal(t, "- 20:00: 7°C, clear sky", lines[4])
}

func TestDailyOutlook_GroupsByLocalDate(t *testing.T) {
	days := DailyOutlook(sampleForecast(t), 5)

	// Local times: 11:00, 14:00, 17:00, 20:00, 23:00 on the 10th, 02:00 on the 11th.
	require.Len(t, days, 2)
	assert.Equal(t, "10.03", days[0].Date.Format("02.01"))
	assert.InDelta(t, 14, days[0].HighC, 0.001)
	assert.InDelta(t, 3, days[0].LowC, 0.001)
	assert.Equal(t, "light rain", days[0].Description)
	assert.Equal(t, "11.03", days[1].Date.Format("02.01"))

	assert.Len(t, DailyOutlook(sampleForecast(t), 1), 1)
}

func TestFormatFiveDay(t *testing.T) {
	got := FormatFiveDay(sampleForecast(t))
	assert.True(t, strings.HasPrefix(got, "5-day forecast for Kyiv:"))
	assert.Contains(t, got, "- 10.03 (Monday): day 14°C, night 3°C, light rain")
}
