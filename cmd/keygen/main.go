package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/tjfontaine/helpdesk-gateway/internal/auth"
)

func main() {
	var apiKey string
	switch len(os.Args) {
	case 1:
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
			os.Exit(1)
		}
		apiKey = "hd_" + hex.EncodeToString(buf)
	case 2:
		apiKey = os.Args[1]
	default:
		fmt.Println("Usage: go run ./cmd/keygen [api-key]")
		fmt.Println("Generates (or hashes) a front-end API key for use in config.yaml")
		os.Exit(1)
	}

	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("auth:\n")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - key_hash: \"%s\"\n", keyHash)
	fmt.Printf("      description: \"Generated key\"\n")
}
