package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"warden/internal/auth"
)

var (
	statsAddr  string
	statsToken string
)

// statsCmd queries a running gateway's monitoring routes
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print tier and cache statistics from a running gateway",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsAddr, "addr", "http://localhost:8080", "gateway base URL")
	statsCmd.Flags().StringVar(&statsToken, "token", "", "bearer token for the monitoring routes")
}

func runStats(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	for _, route := range []string{"/api/v1/monitoring/tiers", "/api/v1/monitoring/cache"} {
		body, err := fetchJSON(client, statsAddr+route, statsToken)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n%s\n", route, body)
	}
	return nil
}

func fetchJSON(client *http.Client, url, token string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned %s: %s", resp.Status, raw)
	}

	var pretty json.RawMessage = raw
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return string(raw), nil
	}
	return string(out), nil
}

// hashPasswordCmd generates a bcrypt hash for the credential list
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate a bcrypt hash for the config credential list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
