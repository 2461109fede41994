package geo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ipsix/geopolis/internal/plugin"
)

const (
	defaultOpenNotify = "http://api.open-notify.org"
	defaultNASAAPI    = "https://api.nasa.gov"
	defaultSpaceDevs  = "https://lldev.thespacedevs.com"
)

type NASASpaceActivity struct {
	settings *plugin.Settings
	fetch    *fetcher
}

func NewNASASpaceActivity(settings *plugin.Settings, options map[string]interface{}) (plugin.Plugin, error) {
	timeout, err := optionDuration(options, "timeout", 15*time.Second)
	if err != nil {
		return nil, err
	}
	return &NASASpaceActivity{settings: settings, fetch: newFetcher(timeout)}, nil
}

func (n *NASASpaceActivity) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:           "nasa-space-activity",
		Name:         "NASA Space Activity",
		Version:      "1.0.0",
		Description:  "ISS position, astronomy picture of the day and upcoming launches",
		Capabilities: []string{"iss_tracking", "astronomy_picture", "launch_schedule"},
		RequiredKeys: []string{"nasa"},
	}
}

func (n *NASASpaceActivity) Execute(ctx context.Context, payload plugin.Payload) (*plugin.Output, error) {
	switch kind := payload.String("activity_type", "iss"); kind {
	case "iss":
		return n.issPosition(ctx)
	case "apod":
		return n.astronomyPicture(ctx)
	case "launches":
		return n.upcomingLaunches(ctx)
	default:
		return nil, fmt.Errorf("unknown activity type %q", kind)
	}
}

func (n *NASASpaceActivity) issPosition(ctx context.Context) (*plugin.Output, error) {
	pos, err := fetchISS(ctx, n.fetch, n.settings)
	if err != nil {
		return nil, err
	}
	return &plugin.Output{
		Message: "ISS position retrieved",
		Data: []plugin.Record{{
			"latitude":  pos.Latitude,
			"longitude": pos.Longitude,
			"timestamp": pos.Timestamp,
		}},
		Metrics: plugin.Metrics{
			"latitude":  pos.Latitude,
			"longitude": pos.Longitude,
			"status":    "in_orbit",
		},
	}, nil
}

func (n *NASASpaceActivity) astronomyPicture(ctx context.Context) (*plugin.Output, error) {
	base := n.settings.Endpoint("nasa_api", defaultNASAAPI)
	query := url.Values{"api_key": {n.settings.APIKey("nasa", "DEMO_KEY")}}
	doc, err := n.fetch.getJSON(ctx, base+"/planetary/apod", query)
	if err != nil {
		return nil, fmt.Errorf("apod: %w", err)
	}
	title := stringOr(doc.Get("title"), "Title unavailable")
	mediaType := stringOr(doc.Get("media_type"), "image")
	return &plugin.Output{
		Message: "Astronomy picture of the day retrieved",
		Data: []plugin.Record{{
			"title":       title,
			"date":        doc.Get("date").String(),
			"explanation": doc.Get("explanation").String(),
			"url":         doc.Get("url").String(),
			"media_type":  mediaType,
			"copyright":   stringOr(doc.Get("copyright"), "NASA"),
		}},
		Metrics: plugin.Metrics{
			"has_image":     mediaType == "image",
			"has_copyright": doc.Get("copyright").Exists(),
			"title_length":  len([]rune(doc.Get("title").String())),
		},
	}, nil
}

func (n *NASASpaceActivity) upcomingLaunches(ctx context.Context) (*plugin.Output, error) {
	base := n.settings.Endpoint("space_devs", defaultSpaceDevs)
	doc, err := n.fetch.getJSON(ctx, base+"/2.2.0/launch/upcoming/", nil)
	if err != nil {
		return nil, fmt.Errorf("launches: %w", err)
	}
	launches := []plugin.Record{}
	for _, l := range doc.Get("results").Array() {
		if len(launches) == 10 {
			break
		}
		launches = append(launches, plugin.Record{
			"name":         stringOr(l.Get("name"), "Unknown"),
			"provider":     stringOr(l.Get("launch_service_provider.name"), "Unknown"),
			"rocket":       stringOr(l.Get("rocket.configuration.name"), "Unknown"),
			"pad":          stringOr(l.Get("pad.name"), "Unknown"),
			"location":     stringOr(l.Get("pad.location.name"), "Unknown"),
			"window_start": l.Get("window_start").String(),
			"status":       stringOr(l.Get("status.name"), "Unknown"),
		})
	}
	next := "None"
	if len(launches) > 0 {
		next = launches[0]["name"].(string)
	}
	return &plugin.Output{
		Message: fmt.Sprintf("%d upcoming launches retrieved", len(launches)),
		Data:    launches,
		Metrics: plugin.Metrics{
			"total_launches": len(launches),
			"next_launch":    next,
			"status":         "schedule_loaded",
		},
	}, nil
}

type issPosition struct {
	Latitude  float64
	Longitude float64
	Timestamp int64
}

func fetchISS(ctx context.Context, f *fetcher, settings *plugin.Settings) (issPosition, error) {
	base := settings.Endpoint("open_notify", defaultOpenNotify)
	doc, err := f.getJSON(ctx, base+"/iss-now.json", nil)
	if err != nil {
		return issPosition{}, fmt.Errorf("iss: %w", err)
	}
	lat, lng := doc.Get("iss_position.latitude"), doc.Get("iss_position.longitude")
	if !lat.Exists() || !lng.Exists() {
		return issPosition{}, fmt.Errorf("iss: response has no iss_position")
	}
	return issPosition{
		Latitude:  lat.Float(),
		Longitude: lng.Float(),
		Timestamp: doc.Get("timestamp").Int(),
	}, nil
}
