// Command pmgen triggers PM work order generation on a running server. It is
// meant to be run from cron, or left running with PMGEN_INTERVAL set.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deve1070/cmms-sub000/internal/auth"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/deve1070/cmms-sub000/internal/pm"
	log "github.com/sirupsen/logrus"
)

// triggerUser is the identity minted tokens are issued to.
var triggerUser = &models.User{ID: "pm-trigger", Username: "pm-trigger", Role: models.RoleSystem, IsActive: true}

func authorizedPost(ctx context.Context, client *http.Client, url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

// trigger runs one generation. A nil now lets the server use its own clock.
func trigger(ctx context.Context, client *http.Client, apiURL, token string, now *time.Time) (*pm.RunSummary, error) {
	payload := map[string]interface{}{}
	if now != nil {
		payload["now"] = now.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := authorizedPost(ctx, client, apiURL+"/pm/generate", token, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	var summary pm.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, nil
}

func mintToken(secret string, ttl time.Duration) (string, error) {
	svc, err := auth.NewService(secret, ttl)
	if err != nil {
		return "", err
	}
	return svc.GenerateToken(triggerUser)
}

func logSummary(s *pm.RunSummary) {
	entry := log.WithFields(log.Fields{
		"run_id":           s.RunID,
		"generated":        s.GeneratedCount,
		"errors":           s.ErrorCount,
		"skipped":          s.SkippedCount,
		"missed_intervals": s.MissedIntervals,
	})
	if s.ErrorCount > 0 {
		for _, e := range s.Errors {
			log.WithFields(log.Fields{
				"schedule_id":  e.ScheduleID,
				"equipment_id": e.EquipmentID,
			}).Warn(e.Error)
		}
		entry.Warn("PM generation finished with errors")
		return
	}
	entry.Info("PM generation finished")
}

func main() {
	mint := flag.Bool("mint-token", false, "print a system token signed with JWT_SECRET and exit")
	at := flag.String("now", "", "RFC3339 time to generate for, defaults to the server clock")
	flag.Parse()

	if *mint {
		token, err := mintToken(os.Getenv("JWT_SECRET"), 365*24*time.Hour)
		if err != nil {
			log.WithError(err).Fatal("Failed to mint token")
		}
		fmt.Println(token)
		return
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	token := os.Getenv("PMGEN_AUTH_TOKEN")
	if token == "" && os.Getenv("JWT_SECRET") != "" {
		minted, err := mintToken(os.Getenv("JWT_SECRET"), time.Hour)
		if err != nil {
			log.WithError(err).Fatal("Failed to mint token")
		}
		token = minted
	}

	var now *time.Time
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.WithError(err).Fatal("Invalid -now")
		}
		now = &t
	}

	var interval time.Duration
	if v := os.Getenv("PMGEN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.WithError(err).Fatal("Invalid PMGEN_INTERVAL")
		}
		interval = d
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client := &http.Client{Timeout: time.Minute}

	log.WithFields(log.Fields{"api_url": apiURL, "interval": interval}).Info("Starting PM trigger")
	if err := runLoop(ctx, client, apiURL, token, now, interval); err != nil {
		log.WithError(err).Fatal("PM generation failed")
	}
}

// runLoop triggers once, then every interval until ctx ends. With a zero
// interval it returns the result of the single run.
func runLoop(ctx context.Context, client *http.Client, apiURL, token string, now *time.Time, interval time.Duration) error {
	summary, err := trigger(ctx, client, apiURL, token, now)
	if interval <= 0 {
		if err != nil {
			return err
		}
		logSummary(summary)
		return nil
	}
	report := func(s *pm.RunSummary, err error) {
		if err != nil {
			log.WithError(err).Error("PM generation failed")
			return
		}
		logSummary(s)
	}
	report(summary, err)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report(trigger(ctx, client, apiURL, token, nil))
		}
	}
}
