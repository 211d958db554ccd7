package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CBRClient fetches the daily rates JSON published by the Central Bank of
// Russia. Only USD and EUR are read from the feed; the ruble is always the
// base at rate 1.
type CBRClient struct {
	url    string
	client *http.Client
}

func NewCBRClient(url string, timeout time.Duration) *CBRClient {
	return &CBRClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type cbrValute struct {
	Name  string  `json:"Name"`
	Value float64 `json:"Value"`
}

type cbrResponse struct {
	Valute map[string]cbrValute `json:"Valute"`
}

// Fetch downloads and parses the daily feed into a snapshot.
func (c *CBRClient) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var payload cbrResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("parse rates response: %w", err)
	}

	snap := Snapshot{
		Rates: map[string]Rate{
			"RUB": {Name: "Российский рубль", Value: 1, Symbol: "₽"},
			"USD": {Name: "Доллар США", Value: 1, Symbol: "$"},
			"EUR": {Name: "Евро", Value: 1, Symbol: "€"},
		},
		LastUpdated: time.Now().UTC(),
	}
	if v, ok := payload.Valute["USD"]; ok {
		snap.Rates["USD"] = Rate{Name: v.Name, Value: v.Value, Symbol: "$"}
	}
	if v, ok := payload.Valute["EUR"]; ok {
		snap.Rates["EUR"] = Rate{Name: v.Name, Value: v.Value, Symbol: "€"}
	}
	return snap, nil
}
