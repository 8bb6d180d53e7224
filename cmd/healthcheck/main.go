// Package main is a container healthcheck probe for greenledger-server. It
// exits 0 when the readiness endpoint answers 2xx and 1 otherwise.
//
// Usage: healthcheck [url]   (default http://127.0.0.1:8080/readyz)
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://127.0.0.1:8080/readyz"

func main() {
	url := defaultURL
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if err := probe(&http.Client{Timeout: 5 * time.Second}, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

func probe(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Status   string            `json:"status"`
		Database map[string]string `json:"database"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Database["status"] != "" {
		return fmt.Errorf("status %d: %s, database %s", resp.StatusCode, body.Status, body.Database["status"])
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
