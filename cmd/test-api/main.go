// Package main is a smoke-test utility that verifies the contact vault HTTP
// API is reachable and returning valid responses. It checks the health
// endpoint and lists the first page of contacts through the Go client, making
// it useful for quick post-deployment checks without needing external tooling
// like curl or a full integration test suite.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/contact-vault/contact-vault/internal/client"
)

func main() {
	baseURL := os.Getenv("CONTACT_VAULT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	fmt.Printf("Health: %d\n", resp.StatusCode)

	c := client.NewClient(baseURL)
	contacts, total, err := c.List(ctx, client.ListOptions{Page: 1, PerPage: 10})
	if err != nil {
		fmt.Printf("Error listing contacts: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Contacts: %d total\n", total)
	for _, contact := range contacts {
		fmt.Printf("  %d: %s %s <%s>\n", contact.ID, contact.FirstName, contact.LastName, contact.Email)
	}
}
