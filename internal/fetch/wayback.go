package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

const defaultWaybackEndpoint = "https://archive.org/wayback/available"

type waybackClient struct {
	endpoint string
	client   *http.Client
}

func newWaybackClient(endpoint string, timeout time.Duration) *waybackClient {
	if endpoint == "" {
		endpoint = defaultWaybackEndpoint
	}
	return &waybackClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type waybackResponse struct {
	ArchivedSnapshots struct {
		Closest struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// closest looks up the nearest archived snapshot of a URL. Lookup
// failures are treated as "no snapshot"; the fallback is best effort.
func (w *waybackClient) closest(ctx context.Context, target string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.endpoint+"?url="+url.QueryEscape(target), nil)
	if err != nil {
		return "", false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var decoded waybackResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", false
	}
	closest := decoded.ArchivedSnapshots.Closest
	if !closest.Available || closest.URL == "" {
		return "", false
	}
	return closest.URL, true
}
