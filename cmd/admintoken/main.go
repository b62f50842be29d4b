// Command admintoken prints a signed bearer token for the HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"

	"learnbot/internal/auth"
	"learnbot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	userID := flag.String("user", "", "Discord user id to issue the token for")
	admin := flag.Bool("admin", false, "Grant the admin role")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "admintoken: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(cfg.API.JWTSecret, cfg.API.JWTExpiry, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}

	role := auth.RoleUser
	if *admin {
		role = auth.RoleAdmin
	}
	token, err := tokens.GenerateToken(*userID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
