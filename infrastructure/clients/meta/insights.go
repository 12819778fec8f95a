package meta

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Insights is the /insights edge response.
type Insights struct {
	Data []struct {
		Name   string `json:"name"`
		Period string `json:"period"`
		Values []struct {
			Value json.RawMessage `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

// Value returns the latest numeric value of a metric, 0 if absent or not a number.
func (in Insights) Value(name string) int64 {
	for _, d := range in.Data {
		if d.Name != name || len(d.Values) == 0 {
			continue
		}
		var n int64
		if err := json.Unmarshal(d.Values[len(d.Values)-1].Value, &n); err == nil {
			return n
		}
		var byType map[string]int64
		if err := json.Unmarshal(d.Values[len(d.Values)-1].Value, &byType); err == nil {
			var total int64
			for _, v := range byType {
				total += v
			}
			return total
		}
	}
	return 0
}

// FetchInsights reads the given metrics on an object.
func (g *Graph) FetchInsights(ctx context.Context, objectID string, metrics []string, period, token string) (Insights, error) {
	params := url.Values{}
	params.Set("metric", strings.Join(metrics, ","))
	if period != "" {
		params.Set("period", period)
	}
	var in Insights
	err := g.Get(ctx, objectID+"/insights", params, token, &in)
	return in, err
}
