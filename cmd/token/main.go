package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"socketd/internal/auth"
	"time"
)

// token mints a development JWT signed with JWT_SECRET.
func main() {
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: token [-ttl 24h] <userId>")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, err := auth.NewAuthService(ctx, secret).Mint(flag.Arg(0), *ttl)
	if err != nil {
		fmt.Printf("Error minting token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
