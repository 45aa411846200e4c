package weather

import "time"

// Current is a normalized current-conditions reading.
type Current struct {
	City        string
	Country     string
	Description string
	TempC       float64
	FeelsLikeC  float64
	Humidity    int
	WindMS      float64
	TZOffset    int // seconds east of UTC at the location
	ObservedAt  time.Time
}

// Slot is one 3-hour forecast entry.
type Slot struct {
	Time        time.Time // UTC
	TempC       float64
	TempMinC    float64
	TempMaxC    float64
	Description string
}

// Forecast is the provider's multi-day forecast in 3-hour steps,
// ordered by Time ascending.
type Forecast struct {
	City     string
	Country  string
	TZOffset int
	Slots    []Slot
}

// Zone returns the fixed zone of the forecast location.
func (f Forecast) Zone() *time.Location {
	return time.FixedZone("", f.TZOffset)
}

// currentPayload mirrors /data/2.5/weather.
type currentPayload struct {
	Name     string `json:"name"`
	Dt       int64  `json:"dt"`
	Timezone int    `json:"timezone"`
	Main     struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// forecastPayload mirrors /data/2.5/forecast.
type forecastPayload struct {
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

func (p currentPayload) toCurrent() Current {
	c := Current{
		City:       p.Name,
		Country:    p.Sys.Country,
		TempC:      p.Main.Temp,
		FeelsLikeC: p.Main.FeelsLike,
		Humidity:   p.Main.Humidity,
		WindMS:     p.Wind.Speed,
		TZOffset:   p.Timezone,
		ObservedAt: time.Unix(p.Dt, 0).UTC(),
	}
	if len(p.Weather) > 0 {
		c.Description = p.Weather[0].Description
	}
	return c
}

func (p forecastPayload) toForecast() Forecast {
	f := Forecast{
		City:     p.City.Name,
		Country:  p.City.Country,
		TZOffset: p.City.Timezone,
		Slots:    make([]Slot, 0, len(p.List)),
	}
	for _, e := range p.List {
		s := Slot{
			Time:     time.Unix(e.Dt, 0).UTC(),
			TempC:    e.Main.Temp,
			TempMinC: e.Main.TempMin,
			TempMaxC: e.Main.TempMax,
		}
		if len(e.Weather) > 0 {
			s.Description = e.Weather[0].Description
		}
		f.Slots = append(f.Slots, s)
	}
	return f
}
