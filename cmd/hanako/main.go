// Hanako is a conversational Matrix assistant.
//
// All infrastructure configuration is loaded from environment variables; the
// assistant's behavior (prompt, models, budgets, replies) lives in the
// persona YAML file.
//
// Required environment variables:
//
//	HANAKO_PERSONA_FILE   - path to the persona YAML
//	HANAKO_MASTER_KEY     - 64-char hex AES key protecting user API keys
//	MATRIX_HOMESERVER     - Matrix homeserver URL (e.g. "https://matrix.org")
//	MATRIX_USER_ID        - bot's Matrix ID (e.g. "@hanako:matrix.org")
//	MATRIX_ACCESS_TOKEN   - bot's Matrix access token
//	MATRIX_ROOMS          - comma-separated room IDs to join
//	LLM_API_KEY           - shared service key for the LLM provider
//
// Optional environment variables:
//
//	HANAKO_DB_PATH        - path to the SQLite database (default: /data/hanako.db)
//	LLM_BASE_URL          - override LLM API base URL (e.g. for a proxy)
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bdobrica/Hanako/common/environment"
	"github.com/bdobrica/Hanako/internal/hanako/app"
	"github.com/bdobrica/Hanako/internal/hanako/matrix"
)

func main() {
	cfg := &app.Config{
		PersonaFile:  requireEnv("HANAKO_PERSONA_FILE"),
		DatabasePath: environment.StringOr("HANAKO_DB_PATH", "/data/hanako.db"),
		MasterKeyHex: requireEnv("HANAKO_MASTER_KEY"),
		LogLevel:     environment.StringOr("LOG_LEVEL", "info"),
		LogFormat:    environment.StringOr("LOG_FORMAT", "text"),
		Matrix: matrix.Config{
			Homeserver:  requireEnv("MATRIX_HOMESERVER"),
			UserID:      requireEnv("MATRIX_USER_ID"),
			AccessToken: requireEnv("MATRIX_ACCESS_TOKEN"),
		},
		AllowedRooms: environment.StringSlice("MATRIX_ROOMS"),
		LLM: app.LLMConfig{
			APIKey:  requireEnv("LLM_API_KEY"),
			BaseURL: environment.StringOr("LLM_BASE_URL", ""),
		},
	}
	if len(cfg.AllowedRooms) == 0 {
		fmt.Fprintln(os.Stderr, "fatal: MATRIX_ROOMS must list at least one room")
		os.Exit(1)
	}

	hanako, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize Hanako", "err", err)
		os.Exit(1)
	}

	if err := hanako.Run(); err != nil {
		slog.Error("Hanako exited with error", "err", err)
		os.Exit(1)
	}
}

func requireEnv(key string) string {
	v, err := environment.RequiredString(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	return v
}
