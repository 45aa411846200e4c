package weather

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	eveningSlots = 4
	outlookDays  = 5
)

// FormatCurrent renders current conditions as a short multi-line report.
func FormatCurrent(c Current) string {
	place := c.City
	if c.Country != "" {
		place += ", " + c.Country
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Weather in %s:\n", place)
	fmt.Fprintf(&b, "%s, %d°C (feels like %d°C)\n", capitalize(c.Description), round(c.TempC), round(c.FeelsLikeC))
	if c.Humidity > 0 {
		fmt.Fprintf(&b, "Humidity: %d%%\n", c.Humidity)
	}
	fmt.Fprintf(&b, "Wind: %.1f m/s", c.WindMS)
	return b.String()
}

// FormatEvening renders the next few forecast slots in the city's local time.
func FormatEvening(f Forecast) string {
	loc := f.Zone()
	var b strings.Builder
	fmt.Fprintf(&b, "Forecast until evening for %s:", f.City)
	for i, s := range f.Slots {
		if i == eveningSlots {
			break
		}
		fmt.Fprintf(&b, "\n- %s: %d°C, %s", s.Time.In(loc).Format("15:04"), round(s.TempC), s.Description)
	}
	return b.String()
}

// DaySummary is one day of the multi-day outlook.
type DaySummary struct {
	Date        time.Time // local midnight
	HighC       float64
	LowC        float64
	Description string
}

// DailyOutlook groups forecast slots by local date of the city.
// Description is taken from the first slot of each day.
func DailyOutlook(f Forecast, days int) []DaySummary {
	loc := f.Zone()
	var res []DaySummary
	for _, s := range f.Slots {
		lt := s.Time.In(loc)
		day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)

		if n := len(res); n > 0 && res[n-1].Date.Equal(day) {
			last := &res[n-1]
			last.HighC = math.Max(last.HighC, s.TempMaxC)
			last.LowC = math.Min(last.LowC, s.TempMinC)
			continue
		}
		if len(res) == days {
			break
		}
		res = append(res, DaySummary{
			Date:        day,
			HighC:       s.TempMaxC,
			LowC:        s.TempMinC,
			Description: s.Description,
		})
	}
	return res
}

// FormatFiveDay renders a five-day outlook.
func FormatFiveDay(f Forecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "5-day forecast for %s:", f.City)
	for _, d := range DailyOutlook(f, outlookDays) {
		fmt.Fprintf(&b, "\n- %s (%s): day %d°C, night %d°C, %s",
			d.Date.Format("02.01"), d.Date.Weekday(), round(d.HighC), round(d.LowC), d.Description)
	}
	return b.String()
}

func round(v float64) int { return int(math.Round(v)) }

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
