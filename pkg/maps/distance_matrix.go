// Package maps estimates cycling routes between two stations.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// LatLng is a coordinate pair in degrees
type LatLng struct {
	Lat float64
	Lng float64
}

func (p LatLng) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// Route is a provider estimate for one origin/destination pair
type Route struct {
	DistanceMeters  int64
	DurationSeconds int64
}

// ErrNoRoute is returned when the provider answers but cannot route the pair
var ErrNoRoute = errors.New("no route between origin and destination")

// DistanceMatrixClient calls the Google Distance Matrix API
type DistanceMatrixClient struct {
	baseURL string
	apiKey  string
	mode    string
	client  *http.Client
}

// DistanceMatrixConfig holds configuration for the Distance Matrix client
type DistanceMatrixConfig struct {
	BaseURL string
	APIKey  string
	Mode    string // bicycling, walking, driving
	Timeout time.Duration
}

// NewDistanceMatrixClient creates a new Distance Matrix client
func NewDistanceMatrixClient(config DistanceMatrixConfig) *DistanceMatrixClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	mode := config.Mode
	if mode == "" {
		mode = "bicycling"
	}
	return &DistanceMatrixClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		mode:    mode,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int64 `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

// Estimate returns distance and duration for a single pair. Any transport
// failure or non-OK status is an error.
func (c *DistanceMatrixClient) Estimate(ctx context.Context, origin, destination LatLng) (*Route, error) {
	params := url.Values{}
	params.Set("origins", origin.String())
	params.Set("destinations", destination.String())
	params.Set("mode", c.mode)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create distance matrix request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("distance matrix request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read distance matrix response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("distance matrix returned HTTP %d", resp.StatusCode)
	}

	var dm distanceMatrixResponse
	if err := json.Unmarshal(body, &dm); err != nil {
		return nil, fmt.Errorf("failed to parse distance matrix response: %w", err)
	}

	if dm.Status != "OK" {
		if dm.ErrorMessage != "" {
			return nil, fmt.Errorf("distance matrix status %s: %s", dm.Status, dm.ErrorMessage)
		}
		return nil, fmt.Errorf("distance matrix status %s", dm.Status)
	}

	if len(dm.Rows) == 0 || len(dm.Rows[0].Elements) == 0 {
		return nil, ErrNoRoute
	}
	element := dm.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, fmt.Errorf("element status %s: %w", element.Status, ErrNoRoute)
	}

	return &Route{
		DistanceMeters:  element.Distance.Value,
		DurationSeconds: element.Duration.Value,
	}, nil
}
