// Command otcbot-admin is the operator's offline companion to the
// dashboard API: seeding system triggers before the bot ever sees a
// group, hashing/encrypting secrets destined for the environment, and
// driving a running instance's simulator endpoints for replay testing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"otcbot/internal/config"
	"otcbot/internal/repository"
	"otcbot/pkg/crypto"
)

var (
	groupJID     string
	dealID       string
	secretValue  string
	hashCost     int
	replayFile   string
	dashboardURL string
	dashboardKey string
)

func main() {
	rootCmd.AddCommand(seedTriggersCmd)
	seedTriggersCmd.Flags().StringVarP(&groupJID, "group", "g", "", "Group JID to seed system triggers for")
	seedTriggersCmd.MarkFlagRequired("group")

	rootCmd.AddCommand(hashSecretCmd)
	hashSecretCmd.Flags().StringVarP(&secretValue, "value", "v", "", "Plaintext secret to hash")
	hashSecretCmd.Flags().IntVarP(&hashCost, "cost", "c", 0, "bcrypt cost (default: pkg/crypto.DefaultCost)")
	hashSecretCmd.MarkFlagRequired("value")

	rootCmd.AddCommand(encryptSecretCmd)
	encryptSecretCmd.Flags().StringVarP(&secretValue, "value", "v", "", "Plaintext secret to encrypt with ENCRYPTION_KEY")
	encryptSecretCmd.MarkFlagRequired("value")

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVarP(&dashboardURL, "url", "u", "http://localhost:8080", "Dashboard base URL")
	sweepCmd.Flags().StringVarP(&dashboardKey, "key", "k", "", "X-Dashboard-Key (or DASHBOARD_SECRET envvar)")
	sweepCmd.Flags().StringVarP(&groupJID, "group", "g", "", "Group JID owning the deal")
	sweepCmd.Flags().StringVarP(&dealID, "deal", "d", "", "Deal ID to force-sweep")
	sweepCmd.MarkFlagRequired("group")
	sweepCmd.MarkFlagRequired("deal")

	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&dashboardURL, "url", "u", "http://localhost:8080", "Dashboard base URL")
	replayCmd.Flags().StringVarP(&dashboardKey, "key", "k", "", "X-Dashboard-Key (or DASHBOARD_SECRET envvar)")
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "JSON file of {\"messages\":[...]} to replay")
	replayCmd.MarkFlagRequired("file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "otcbot-admin",
	Short: "Operator tooling for the OTC desk bot",
	Long:  "otcbot-admin seeds triggers, hashes/encrypts secrets, and drives the dashboard's simulator endpoints.",
}

var seedTriggersCmd = &cobra.Command{
	Use:   "seed-triggers",
	Short: "Seed the default system triggers for a group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := repository.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()

		triggers := repository.NewTriggerRepository(db)
		if err := triggers.SeedSystemTriggers(ctx, groupJID); err != nil {
			return fmt.Errorf("seeding system triggers: %w", err)
		}
		fmt.Printf("seeded system triggers for %s\n", groupJID)
		return nil
	},
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret",
	Short: "Hash a secret with bcrypt, for anything an operator wants to store hashed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			hash string
			err  error
		)
		if hashCost > 0 {
			hash, err = crypto.HashSecretWithCost(secretValue, hashCost)
		} else {
			hash, err = crypto.HashSecret(secretValue)
		}
		if err != nil {
			return fmt.Errorf("hashing secret: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

var encryptSecretCmd = &cobra.Command{
	Use:   "encrypt-secret",
	Short: "Encrypt a secret with ENCRYPTION_KEY, for AI_API_KEY_ENC and similar at-rest env values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ciphertext, err := crypto.Encrypt(secretValue, []byte(cfg.Security.EncryptionKey))
		if err != nil {
			return fmt.Errorf("encrypting secret: %w", err)
		}
		fmt.Println(ciphertext)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Force-expire a single deal via the dashboard API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/groups/%s/deals/%s/sweep", groupJID, dealID)
		_, err := dashboardPost(path, nil)
		if err != nil {
			return err
		}
		fmt.Println("swept")
		return nil
	},
}

type replayFileBody struct {
	Messages []json.RawMessage `json:"messages"`
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a saved message log through the dashboard's simulator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(replayFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", replayFile, err)
		}
		var body replayFileBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("parsing %s: %w", replayFile, err)
		}

		respBody, err := dashboardPost("/api/simulator/replay", raw)
		if err != nil {
			return err
		}
		fmt.Println(string(respBody))
		return nil
	},
}

func dashboardPost(path string, body []byte) ([]byte, error) {
	key := dashboardKey
	if key == "" {
		key = os.Getenv("DASHBOARD_SECRET")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	req, err := retryablehttp.NewRequest(http.MethodPost, dashboardURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Dashboard-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling dashboard: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading dashboard response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("dashboard returned %s: %s", resp.Status, respBody)
	}
	return respBody, nil
}
