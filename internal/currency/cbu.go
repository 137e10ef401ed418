package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultCBUEndpoint is the central bank's USD rate archive.
const DefaultCBUEndpoint = "https://cbu.uz/oz/arkhiv-kursov-valyut/json/USD/"

// CBUClient reads the so'm-per-USD rate from the cbu.uz JSON feed. The feed
// returns an array of quotes with the current one first; Rate is a decimal
// string like "12650.43".
type CBUClient struct {
	endpoint string
	client   *http.Client
}

func NewCBUClient(endpoint string) *CBUClient {
	if endpoint == "" {
		endpoint = DefaultCBUEndpoint
	}
	return &CBUClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *CBUClient) FetchRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch rate: unexpected status %d", resp.StatusCode)
	}

	var quotes []struct {
		Ccy  string `json:"Ccy"`
		Rate string `json:"Rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	if len(quotes) == 0 {
		return 0, fmt.Errorf("rate response is empty")
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(quotes[0].Rate), 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", quotes[0].Rate, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("non-positive rate %v", rate)
	}
	return rate, nil
}
