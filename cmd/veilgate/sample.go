package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"
)

var summaries = []string{
	"Freezing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Scorching",
}

type forecast struct {
	Date         string  `json:"date"`
	TemperatureC int     `json:"temperatureC"`
	TemperatureF int     `json:"temperatureF"`
	Humidity     int     `json:"humidity"`
	Pressure     float64 `json:"pressure"`
	Summary      string  `json:"summary"`
	Location     string  `json:"location"`
	InternalID   string  `json:"internalId"`
}

// sampleHandler serves a small weather API so the gateway can be
// exercised without a real upstream. The payload deliberately mixes
// fields from every tier of the default policy table.
func sampleHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /weather", func(w http.ResponseWriter, r *http.Request) {
		forecasts := make([]forecast, 5)
		for i := range forecasts {
			c := rand.Intn(55) - 20
			forecasts[i] = forecast{
				Date:         time.Now().AddDate(0, 0, i).Format("2006-01-02"),
				TemperatureC: c,
				TemperatureF: 32 + c*9/5,
				Humidity:     30 + rand.Intn(60),
				Pressure:     980 + rand.Float64()*50,
				Summary:      summaries[rand.Intn(len(summaries))],
				Location:     "Berlin",
				InternalID:   "station-042",
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(forecasts)
	})
	return mux
}
