package geo

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ipsix/geopolis/internal/plugin"
)

const (
	defaultCelesTrak = "https://celestrak.org/NORAD/elements"

	earthRadiusKM = 6378.137
	earthMuKM3S2  = 398600.4418

	maxSatellites   = 20
	maxDebris       = 15
	maxSpaceWeather = 10
	maxSpaceRecords = 30
)

// SpaceActivity aggregates satellite, debris, space weather and ISS data.
// Every source falls back to a fixed sample when its upstream is unreachable.
type SpaceActivity struct {
	settings *plugin.Settings
	fetch    *fetcher
	now      func() time.Time
}

func NewSpaceActivity(settings *plugin.Settings, options map[string]interface{}) (plugin.Plugin, error) {
	timeout, err := optionDuration(options, "timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	return &SpaceActivity{settings: settings, fetch: newFetcher(timeout), now: time.Now}, nil
}

func (s *SpaceActivity) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:           "space-activity",
		Name:         "Space Activity Monitor",
		Version:      "2.0.0",
		Description:  "Satellites, orbital debris, space weather and ISS tracking",
		Capabilities: []string{"satellite_tracking", "debris_monitoring", "space_weather", "iss_tracking"},
		RequiredKeys: []string{"nasa"},
	}
}

type sourceResult struct {
	records []plugin.Record
	live    bool
}

func (s *SpaceActivity) Execute(ctx context.Context, _ plugin.Payload) (*plugin.Output, error) {
	satellites := s.satellites(ctx, "active", maxSatellites, fallbackSatellites)
	debris := s.satellites(ctx, "debris", maxDebris, fallbackDebris)
	weather := s.spaceWeather(ctx)
	station := s.station(ctx)

	for _, d := range debris.records {
		d["type"] = "Debris"
		d["risk_level"] = debrisRisk(d["altitude_km"].(float64))
	}

	collisionRisk := 0.0
	if n := len(satellites.records); n > 0 {
		collisionRisk = float64(len(debris.records)) / float64(n)
	}
	alerts := s.alerts(collisionRisk, weather.records)

	sources := []string{}
	for name, r := range map[string]sourceResult{"CelesTrak": satellites, "NASA DONKI": weather, "Open Notify": station} {
		if r.live {
			sources = append(sources, name)
		}
	}
	liveSources := "none"
	if len(sources) > 0 {
		liveSources = strings.Join(sortedCopy(sources), ", ")
	}

	data := make([]plugin.Record, 0, maxSpaceRecords)
	data = append(data, station.records...)
	data = append(data, alerts...)
	data = append(data, weather.records...)
	data = append(data, satellites.records...)
	data = append(data, debris.records...)
	if len(data) > maxSpaceRecords {
		data = data[:maxSpaceRecords]
	}

	issAltitude := 0.0
	if len(station.records) > 0 {
		issAltitude = station.records[0]["altitude_km"].(float64)
	}

	return &plugin.Output{
		Message: fmt.Sprintf("space activity: %d satellites, %d debris objects, %d events",
			len(satellites.records), len(debris.records), len(weather.records)),
		Data: data,
		Metrics: plugin.Metrics{
			"active_satellites": len(satellites.records),
			"tracked_debris":    len(debris.records),
			"active_events":     len(weather.records),
			"collision_risk":    collisionRiskLevel(collisionRisk),
			"collision_ratio":   math.Round(collisionRisk*1000) / 1000,
			"iss_altitude_km":   issAltitude,
			"alerts":            len(alerts),
			"live_sources":      liveSources,
		},
	}, nil
}

func (s *SpaceActivity) satellites(ctx context.Context, group string, limit int, fallback func() []plugin.Record) sourceResult {
	base := s.settings.Endpoint("celestrak", defaultCelesTrak)
	query := url.Values{"GROUP": {group}, "FORMAT": {"json"}}
	doc, err := s.fetch.getJSON(ctx, base+"/gp.php", query)
	if err != nil || !doc.IsArray() || len(doc.Array()) == 0 {
		return sourceResult{records: fallback()}
	}
	out := []plugin.Record{}
	for _, sat := range doc.Array() {
		if len(out) == limit {
			break
		}
		out = append(out, satelliteRecord(sat))
	}
	return sourceResult{records: out, live: true}
}

func satelliteRecord(sat gjson.Result) plugin.Record {
	altitude := altitudeFromMeanMotion(sat.Get("MEAN_MOTION").Float())
	return plugin.Record{
		"name":        stringOr(sat.Get("OBJECT_NAME"), "Unknown"),
		"norad_id":    sat.Get("NORAD_CAT_ID").Int(),
		"type":        "Satellite",
		"orbit":       orbitClass(altitude),
		"altitude_km": altitude,
		"inclination": sat.Get("INCLINATION").Float(),
		"launch_year": launchYear(sat.Get("OBJECT_ID").String()),
		"status":      "Active",
	}
}

// altitudeFromMeanMotion converts revolutions per day into a mean altitude
// above the equatorial radius, rounded to the kilometre.
func altitudeFromMeanMotion(revsPerDay float64) float64 {
	if revsPerDay <= 0 {
		return 0
	}
	n := revsPerDay * 2 * math.Pi / 86400
	a := math.Cbrt(earthMuKM3S2 / (n * n))
	return math.Round(a - earthRadiusKM)
}

func orbitClass(altitudeKM float64) string {
	switch {
	case altitudeKM <= 0:
		return "Unknown"
	case altitudeKM < 2000:
		return "LEO"
	case altitudeKM < 35586:
		return "MEO"
	case altitudeKM <= 35986:
		return "GEO"
	default:
		return "HEO"
	}
}

func launchYear(objectID string) string {
	if len(objectID) >= 4 {
		return objectID[:4]
	}
	return "Unknown"
}

// Debris between 700 and 1000 km sits in the most congested shell.
func debrisRisk(altitudeKM float64) string {
	if altitudeKM >= 700 && altitudeKM <= 1000 {
		return "High"
	}
	return "Moderate"
}

func collisionRiskLevel(ratio float64) string {
	switch {
	case ratio > 0.1:
		return "High"
	case ratio > 0.05:
		return "Moderate"
	default:
		return "Low"
	}
}

func (s *SpaceActivity) spaceWeather(ctx context.Context) sourceResult {
	base := s.settings.Endpoint("nasa_api", defaultNASAAPI)
	end := s.now().UTC()
	query := url.Values{
		"startDate": {end.AddDate(0, 0, -30).Format("2006-01-02")},
		"endDate":   {end.Format("2006-01-02")},
		"api_key":   {s.settings.APIKey("nasa", "DEMO_KEY")},
	}
	doc, err := s.fetch.getJSON(ctx, base+"/DONKI/notifications", query)
	if err != nil || !doc.IsArray() {
		return sourceResult{records: fallbackSpaceWeather()}
	}
	out := []plugin.Record{}
	for _, n := range doc.Array() {
		if len(out) == maxSpaceWeather {
			break
		}
		body := n.Get("messageBody").String()
		out = append(out, plugin.Record{
			"type":       "Space weather",
			"event":      stringOr(n.Get("messageType"), "Unknown"),
			"issued_at":  n.Get("messageIssueTime").String(),
			"message_id": n.Get("messageID").String(),
			"summary":    truncate(body, 200),
			"url":        n.Get("messageURL").String(),
		})
	}
	return sourceResult{records: out, live: true}
}

func (s *SpaceActivity) station(ctx context.Context) sourceResult {
	pos, err := fetchISS(ctx, s.fetch, s.settings)
	if err != nil {
		return sourceResult{records: []plugin.Record{issRecord(0, 0)}}
	}
	return sourceResult{records: []plugin.Record{issRecord(pos.Latitude, pos.Longitude)}, live: true}
}

func issRecord(lat, lng float64) plugin.Record {
	return plugin.Record{
		"name":        "ISS",
		"type":        "Space station",
		"latitude":    lat,
		"longitude":   lng,
		"altitude_km": 408.0,
		"orbit":       "LEO",
		"status":      "Operational",
	}
}

func (s *SpaceActivity) alerts(collisionRisk float64, weather []plugin.Record) []plugin.Record {
	out := []plugin.Record{}
	if collisionRisk > 0.1 {
		out = append(out, plugin.Record{
			"type":     "Alert",
			"severity": "High",
			"title":    "Elevated collision risk",
			"detail":   fmt.Sprintf("debris to satellite ratio %.2f", collisionRisk),
		})
	}
	for _, w := range weather {
		event, _ := w["event"].(string)
		if event == "FLR" || event == "CME" || event == "GST" {
			out = append(out, plugin.Record{
				"type":     "Alert",
				"severity": "Moderate",
				"title":    "Space weather event " + event,
				"detail":   w["summary"],
			})
			break
		}
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}

func fallbackSatellites() []plugin.Record {
	return []plugin.Record{
		{"name": "STARLINK-1007", "norad_id": int64(44713), "type": "Satellite", "orbit": "LEO", "altitude_km": 550.0, "inclination": 53.0, "launch_year": "2019", "status": "Active"},
		{"name": "GPS BIIR-2", "norad_id": int64(24876), "type": "Satellite", "orbit": "MEO", "altitude_km": 20180.0, "inclination": 55.0, "launch_year": "1997", "status": "Active"},
		{"name": "SES-17", "norad_id": int64(49055), "type": "Satellite", "orbit": "GEO", "altitude_km": 35786.0, "inclination": 0.1, "launch_year": "2021", "status": "Active"},
		{"name": "SENTINEL-2A", "norad_id": int64(40697), "type": "Satellite", "orbit": "LEO", "altitude_km": 786.0, "inclination": 98.6, "launch_year": "2015", "status": "Active"},
	}
}

func fallbackDebris() []plugin.Record {
	return []plugin.Record{
		{"name": "FENGYUN 1C DEB", "norad_id": int64(29228), "type": "Debris", "orbit": "LEO", "altitude_km": 850.0, "inclination": 98.8, "launch_year": "1999", "status": "Active"},
		{"name": "COSMOS 2251 DEB", "norad_id": int64(33772), "type": "Debris", "orbit": "LEO", "altitude_km": 790.0, "inclination": 74.0, "launch_year": "1993", "status": "Active"},
	}
}

func fallbackSpaceWeather() []plugin.Record {
	return []plugin.Record{
		{"type": "Space weather", "event": "Report", "issued_at": "", "message_id": "sample", "summary": "Space weather data unavailable, showing sample entry", "url": ""},
	}
}
