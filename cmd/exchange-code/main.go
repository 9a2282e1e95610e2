// Offline bootstrap: exchange an OAuth authorization code for the initial
// credential record when the callback endpoint is not reachable (local dev,
// server-to-server setup).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbxlabs/shipbox/config"
	"github.com/rbxlabs/shipbox/internal/storage/pgship"
	"github.com/rbxlabs/shipbox/internal/tokens"
)

func main() {
	accountID := flag.String("account-id", "default", "logical account identifier")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: exchange-code [flags] <authorization-code>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	code := flag.Arg(0)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to load config: %v\n", err)
		os.Exit(2)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(2)
	}

	baseURL := cfg.ShipBox.MEBaseURL
	if baseURL == "" {
		baseURL = "https://melhorenvio.com.br"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgship.New(connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to connect storage: %v\n", err)
		os.Exit(2)
	}
	defer st.Close()

	tm := tokens.New(st, &http.Client{Timeout: 30 * time.Second}, tokens.Config{
		TokenEndpoint: baseURL + "/oauth/token",
		ClientID:      secrets.ClientID,
		ClientSecret:  secrets.ClientSecret,
		RedirectURI:   secrets.RedirectURI,
		UserAgent:     cfg.ShipBox.MEUserAgent,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cred, err := tm.ExchangeCode(ctx, *accountID, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] failed to exchange code: %v\n", err)
		os.Exit(2)
	}

	scope := "<none>"
	if cred.Scope != nil {
		scope = *cred.Scope
	}
	fmt.Println("[OK] Credential saved.")
	fmt.Printf("  account_id   : %s\n", cred.AccountID)
	fmt.Printf("  access_token : %s\n", mask(cred.AccessToken))
	fmt.Printf("  refresh_token: %s\n", mask(cred.RefreshToken))
	fmt.Printf("  token_type   : %s\n", cred.TokenType)
	fmt.Printf("  scope        : %s\n", scope)
	fmt.Printf("  expires_at   : %s\n", cred.ExpiresAt.Format(time.RFC3339))
}

func mask(token string) string {
	if token == "" {
		return "<none>"
	}
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-6:]
}
