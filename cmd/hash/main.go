// Package main is a utility for generating the two credentials the vault
// needs outside the database: the bcrypt hash of the maintenance token (the
// server stores only the hash, configured as CV_AUDIT_MAINTENANCE_TOKEN_HASH)
// and, for local testing, a signed actor token. Neither is ever written by
// the server itself, so this tool is the only way to produce them.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/contact-vault/contact-vault/internal/auth"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "token"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "token":
		// Hash a maintenance token; without an argument a fresh random one
		// is generated and printed alongside its hash.
		raw := ""
		if len(os.Args) > 2 {
			raw = os.Args[2]
		} else {
			tokenBytes := make([]byte, 32)
			if _, err := rand.Read(tokenBytes); err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			raw = "cv_maint_" + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(tokenBytes)
			fmt.Printf("Token: %s\n", raw)
		}

		hash, err := auth.HashMaintenanceToken(raw)
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		fmt.Printf("Hash:  %s\n", hash)
		return nil

	case "actor":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s actor <name>", os.Args[0])
		}
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET must be set to mint actor tokens")
		}

		token, err := auth.CreateToken(os.Args[2], secret, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to create actor token: %w", err)
		}
		fmt.Println(token)
		return nil

	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: token, actor", command)
	}
}
