package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/casfa/casfa/pkg/api"
	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/authserver"
	"github.com/casfa/casfa/pkg/authserver/server/handlers"
	"github.com/casfa/casfa/pkg/authserver/storage"
	"github.com/casfa/casfa/pkg/config"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/logger"
	"github.com/casfa/casfa/pkg/mcp"
	"github.com/casfa/casfa/pkg/scope"
	"github.com/casfa/casfa/pkg/versions"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the casfad HTTP server",
		Long: `Start the casfad HTTP server.

Configuration comes from the environment: LISTEN_ADDR, REDIS_URL,
KNOWN_CLIENTS, AT_TTL_SECONDS, AUTH_CODE_TTL_MS, MAX_DELEGATE_DEPTH,
and the JWT_* validation settings. Without REDIS_URL everything runs
in process memory, which is suitable for development only.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
		redisClient = client
		logger.Infow("redis connected", "addr", opts.Addr)
	} else {
		logger.Warn("REDIS_URL not set, running with in-memory stores")
	}

	store := delegate.NewCachedStore(delegate.NewMemoryStore(), redisClient, delegate.DefaultCacheTTL)

	var (
		nodes scope.NodeSource
		sets  scope.SetStore
		codes storage.Store
	)
	if redisClient != nil {
		nodes = scope.NewRedisNodeSource(redisClient)
		sets = scope.NewRedisSetStore(redisClient)
		codes = storage.NewRedisStore(redisClient)
	} else {
		nodes = scope.EmptyNodeSource{}
		sets = scope.NewMemorySetStore()
		memCodes := storage.NewMemoryStore()
		defer memCodes.Close()
		codes = memCodes
	}

	manager := delegate.NewManager(store, scope.NewResolver(nodes, sets), cfg.AccessTokenTTL, cfg.MaxDelegateDepth)

	validator, err := auth.NewJWTValidator(ctx, auth.JWTValidatorConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		JWKSURL:    cfg.JWTJWKSURL,
		HMACSecret: []byte(cfg.JWTHMACSecret),
	})
	if err != nil {
		return fmt.Errorf("failed to configure JWT validation: %w", err)
	}
	if cfg.JWTHMACSecret != "" {
		logger.Warn("JWT validation uses a shared HMAC secret, do not use this in production")
	}

	registry, err := authserver.NewRegistry(cfg.KnownClients)
	if err != nil {
		return fmt.Errorf("invalid client registry: %w", err)
	}

	oauth := handlers.NewHandler(registry, codes, manager, handlers.Config{
		Issuer:         cfg.IssuerURL,
		AccessTokenTTL: cfg.AccessTokenTTL,
		AuthCodeTTL:    cfg.AuthCodeTTL,
	})

	mcpServer := mcp.NewServer(manager, versions.GetVersionInfo().Version)

	return api.Serve(ctx, cfg.ListenAddr, api.Deps{
		Manager:       manager,
		Authenticator: auth.NewAuthenticator(store),
		JWTValidator:  validator,
		OAuth:         oauth,
		MCP:           mcpServer.Handler(),
	})
}
