package cli

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linklift/linklift/internal/config"
	"github.com/linklift/linklift/internal/geoip"
	"github.com/linklift/linklift/internal/server"
	"github.com/linklift/linklift/internal/service"
	"github.com/linklift/linklift/internal/store"
)

const banner = `
 _    _      _    _ _  __ _
| |  (_)_ _ | |__| (_)/ _| |_
| |__| | ' \| / /| | |  _|  _|
|____|_|_||_|_\_\|_|_|_|  \__|
`

// jwtSecretSetting is the settings-table key holding the signing secret
// when it is not provided via config or environment.
const jwtSecretSetting = "jwt_secret"

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the linklift API server",
		Long:  "Start the HTTP server that handles federated login, token refresh, API key authentication, and short-link redirects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(dev)

	// 1. Open the credential store.
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("credential store ready", "driver", viper.GetString("database.driver"))

	// 2. Resolve the JWT signing secret: config/env first, then the
	// settings table, generating and persisting one on first run.
	secret, err := resolveJWTSecret(st, logger)
	if err != nil {
		return err
	}

	// 3. Token, API key, and federated identity services.
	accessTTL := config.Duration(viper.GetString("auth.access_expiry"), 0)
	refreshTTL := config.Duration(viper.GetString("auth.refresh_expiry"), 0)
	tokens := service.NewTokenService(st, secret, accessTTL, refreshTTL)
	keys := service.NewAPIKeyService(st, logger)
	bridge := service.NewIdentityBridge(st, tokens, logger)

	oauth := service.NewMicrosoftOAuth(
		viper.GetString("oauth.client_id"),
		viper.GetString("oauth.client_secret"),
		viper.GetString("oauth.redirect_url"),
		viper.GetString("oauth.tenant"),
	)
	if viper.GetString("oauth.client_id") == "" {
		logger.Warn("oauth.client_id not configured, federated login will fail")
	}

	// 4. Optional geo lookup for redirect logging.
	geo := geoip.New(viper.GetString("geoip.database_path"), logger)

	// 5. Build and start the HTTP server.
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}
	if rate := viper.GetInt("auth.rate_per_minute"); rate > 0 {
		srvCfg.AuthRatePerMinute = rate
	}

	srv := server.New(srvCfg, st, tokens, keys, bridge, oauth, geo, nil, logger)

	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Login:   http://%s:%d/api/auth/oauth2/login\n", host, port)
	fmt.Printf("→ Health:  http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

func newLogger(dev bool) *slog.Logger {
	level := slog.LevelInfo
	if dev || viper.GetString("logging.level") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if viper.GetString("logging.format") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// resolveJWTSecret returns the token signing secret. Order of precedence:
// auth.jwt_secret from config or LINKLIFT_AUTH_JWT_SECRET, then the
// settings table. On a fresh store a random secret is generated and
// persisted so restarts keep issued tokens valid.
func resolveJWTSecret(st *store.Store, logger *slog.Logger) (string, error) {
	if secret := viper.GetString("auth.jwt_secret"); secret != "" {
		return secret, nil
	}

	ctx := cmdCtx()
	secret, err := st.GetSetting(ctx, jwtSecretSetting)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load signing secret: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	if err := st.SetSetting(ctx, jwtSecretSetting, secret); err != nil {
		return "", fmt.Errorf("persist signing secret: %w", err)
	}
	logger.Info("generated new token signing secret")
	return secret, nil
}
