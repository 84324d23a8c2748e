package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// Share is one share to submit to the API.
type Share struct {
	ShareCode   string `json:"share_code"`
	ReceiveCode string `json:"receive_code"`
	RootID      string `json:"root_id,omitempty"`
}

// Config holds the shares to submit to the API.
type Config struct {
	Shares []Share `json:"shares"`
}

func main() {
	configPath := flag.String("config", "shares.json", "Path to JSON config file with shares")
	apiBase := flag.String("api", "http://localhost:30080", "API base URL (nodePort when hitting Kind from host; e.g. http://localhost:30080)")
	flag.Parse()

	if err := run(*configPath, *apiBase, nil); err != nil {
		log.Fatal(err)
	}
}

// run loads config from configPath, parses apiBase, and submits all shares to the API concurrently.
// If client is nil, a default HTTP client (30s timeout) is used.
func run(configPath, apiBase string, client *http.Client) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	baseURL, err := url.Parse(apiBase)
	if err != nil {
		return err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var wg sync.WaitGroup
	for i, share := range cfg.Shares {
		wg.Add(1)
		go func(idx int, sh Share) {
			defer wg.Done()
			submitShare(client, baseURL, idx, sh)
		}(i, share)
	}
	wg.Wait()
	log.Printf("submitted %d shares", len(cfg.Shares))
	return nil
}

// loadConfig reads and parses the JSON config file.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Shares) == 0 {
		return cfg, errNoShares
	}
	return cfg, nil
}

var errNoShares = fmt.Errorf("config has no shares")

func submitShare(client *http.Client, base *url.URL, idx int, share Share) {
	u := *base
	u.Path = "/shares"
	query := url.Values{"share_code": {share.ShareCode}}
	if share.ReceiveCode != "" {
		query.Set("receive_code", share.ReceiveCode)
	}
	if share.RootID != "" {
		query.Set("cid", share.RootID)
	}
	u.RawQuery = query.Encode()

	resp, err := client.Post(u.String(), "", nil)
	if err != nil {
		log.Printf("[%d] share=%q err=%v", idx, share.ShareCode, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Printf("[%d] share=%q status=%d", idx, share.ShareCode, resp.StatusCode)
		return
	}
	log.Printf("[%d] share=%q accepted", idx, share.ShareCode)
}
