package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/relaymsg/relay/pkg/auth"
	"github.com/relaymsg/relay/pkg/conversations"
	"github.com/relaymsg/relay/pkg/feed"
	"github.com/relaymsg/relay/pkg/handlers"
	"github.com/relaymsg/relay/pkg/handlers/accounts"
	"github.com/relaymsg/relay/pkg/handlers/changes"
	convhandler "github.com/relaymsg/relay/pkg/handlers/conversations"
	"github.com/relaymsg/relay/pkg/handlers/messages"
	"github.com/relaymsg/relay/pkg/handlers/transactions"
	"github.com/relaymsg/relay/pkg/ledger"
	"github.com/relaymsg/relay/pkg/settlement"
	"github.com/relaymsg/relay/pkg/storage/sqlite"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbPath := os.Getenv("SQLITE_DB_PATH")
	if dbPath == "" {
		dbPath = "relay.db"
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	gatewayURL := os.Getenv("SETTLEMENT_GATEWAY_URL")
	if gatewayURL == "" {
		log.Fatal("SETTLEMENT_GATEWAY_URL environment variable not set")
	}
	gatewayTimeout := durationEnv("SETTLEMENT_GATEWAY_TIMEOUT", 10*time.Second)
	gateway := settlement.NewHTTPGateway(gatewayURL, gatewayTimeout)

	holdingAddress := os.Getenv("HOLDING_ADDRESS")
	holdingSecret := os.Getenv("HOLDING_SECRET")
	if holdingAddress == "" || holdingSecret == "" {
		log.Fatal("HOLDING_ADDRESS and HOLDING_SECRET environment variables must be set")
	}

	ledgerSvc := ledger.New(store, gateway, ledger.Config{
		HoldingAddress: holdingAddress,
		HoldingSecret:  holdingSecret,
	}, logger)
	conversationSvc := conversations.New(store, ledgerSvc, logger)

	grace := durationEnv("SETTLEMENT_GRACE", settlement.DefaultGrace)
	reconciler := settlement.NewReconciler(store, gateway, ledgerSvc, conversationSvc, grace, logger)
	changeFeed := feed.New(store, reconciler, logger)

	secrets, err := parseSecrets(os.Getenv("AUTH_SECRETS"))
	if err != nil {
		log.Fatalf("Invalid AUTH_SECRETS: %v", err)
	}
	authenticator := auth.NewHMACAuthenticator(func(callerID string) (string, bool) {
		secret, ok := secrets[callerID]
		return secret, ok
	})

	router := handlers.NewRouter(handlers.Handlers{
		Accounts:      accounts.NewAccountsHandler(ledgerSvc, reconciler, logger),
		Transactions:  transactions.NewTransactionsHandler(ledgerSvc, store, store, reconciler, logger),
		Messages:      messages.NewMessagesHandler(conversationSvc, reconciler, logger),
		Conversations: convhandler.NewConversationsHandler(conversationSvc, logger),
		Changes:       changes.NewChangesHandler(changeFeed, logger),
	}, authenticator, logger)

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080" // Default port if not specified
	}

	logger.Info("starting server", slog.String("port", port))
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// parseSecrets parses "caller1=secret1,caller2=secret2" into a lookup map.
func parseSecrets(raw string) (map[string]string, error) {
	secrets := make(map[string]string)
	if raw == "" {
		return secrets, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		id, secret, ok := strings.Cut(pair, "=")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed caller=secret pair: %q", pair)
		}
		secrets[id] = secret
	}
	return secrets, nil
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return d
}
