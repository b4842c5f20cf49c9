package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Weather is the current conditions shown at the top of a digest.
type Weather struct {
	TemperatureC float64 `json:"temperature_c"`
	Code         int     `json:"code"`
	Description  string  `json:"description"`
}

// WeatherProvider reports current conditions.
type WeatherProvider interface {
	Current(ctx context.Context) (*Weather, error)
}

// OpenMeteo queries the Open-Meteo forecast API.
type OpenMeteo struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	Client    *http.Client
}

// NewOpenMeteo returns a client for the given coordinates.
func NewOpenMeteo(baseURL string, lat, lon float64, tz string) *OpenMeteo {
	return &OpenMeteo{
		BaseURL:   baseURL,
		Latitude:  lat,
		Longitude: lon,
		Timezone:  tz,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Current fetches the current temperature and weather code.
func (o *OpenMeteo) Current(ctx context.Context) (*Weather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(o.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(o.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code")
	if o.Timezone != "" {
		q.Set("timezone", o.Timezone)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: build request: %w", err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}
	return &Weather{
		TemperatureC: body.Current.Temperature,
		Code:         body.Current.WeatherCode,
		Description:  describeWeather(body.Current.WeatherCode),
	}, nil
}

// describeWeather maps a WMO weather interpretation code to a short label.
func describeWeather(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "Rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
