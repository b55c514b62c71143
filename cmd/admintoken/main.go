// Command admintoken issues a bearer token for the relay admin API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/ticket-relay/internal/auth"
	"github.com/spec-kit/ticket-relay/internal/config"
)

func main() {
	staffID := pflag.Int64("staff-id", 0, "Telegram id of the staff member the token is issued to")
	ttl := pflag.Int("ttl-minutes", 0, "token lifetime in minutes (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is not set")
		os.Exit(1)
	}
	if !auth.NewRoster(cfg.Telegram.StaffIDs).Contains(*staffID) {
		fmt.Fprintf(os.Stderr, "staff id %d is not listed in SUPPORT_STAFF_IDS\n", *staffID)
		os.Exit(2)
	}

	minutes := cfg.Auth.AccessTokenTTLMinutes
	if *ttl > 0 {
		minutes = *ttl
	}
	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, minutes).GenerateToken(*staffID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
}
