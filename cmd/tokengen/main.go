package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/config"
)

func main() {
	username := flag.String("username", "", "username the token is issued to (required)")
	env := flag.String("env", "prod", "environment prefix")
	expires := flag.String("expires", "90d", "expiry duration (e.g., 90d, 720h)")
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	user := auth.NormalizeUsername(*username)
	if user == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -username is required")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFile(filepath.Join(*configDir, "gateway.yaml"), cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}

	token, err := auth.GenerateToken(*env)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	cred := auth.Credential{
		Username:  user,
		TokenHash: auth.HashToken(token),
		ExpiresAt: time.Now().Add(dur),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var db *pgxpool.Pool
	if cfg.Database.Enabled() {
		db, err = pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
	}
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	store := auth.NewCachedCredentialStore(db, rdb, cfg.Auth.CacheTTL)
	if err := store.Store(ctx, cred, cfg.Auth.GracePeriod); err != nil {
		log.Fatalf("failed to store token: %v", err)
	}

	fmt.Println("=== Chat Token Issued ===")
	fmt.Println()
	fmt.Printf("  Username:      %s\n", cred.Username)
	fmt.Printf("  Token Prefix:  %s\n", auth.TokenPrefix(token))
	fmt.Printf("  Expires:       %s\n", cred.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("  Accepted until: %s\n", cred.ExpiresAt.Add(cfg.Auth.GracePeriod).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Token (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", token)
	fmt.Println()
	fmt.Println("=========================")
}
