// Package main is the ResellerDesk sync daemon. Desktop and mobile clients
// talk to it over REST/WebSocket on localhost:8090. A .env file in the
// working directory is loaded before the RESELLERDESK_* overrides are read.
package main

import (
	"context"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/kimhsiao/resellerdesk/backend/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
