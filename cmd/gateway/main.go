// Command gateway runs an authentication gateway in front of an upstream
// application: unauthenticated browser requests are sent through the
// configured login flow, API requests may carry bearer tokens, and every
// other request is proxied through once a profile is established.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"authgate/clients"
	"authgate/core"
	"authgate/store"
	"authgate/webhttp"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHGATE_CONFIG"), "Path to YAML config")
	flag.Parse()

	configFile := *configPath
	if configFile == "" {
		configFile = "config.yaml"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := LoadConfig(configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init gateway: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logger.Info("gateway listening", "addr", cfg.ListenAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildHandler(ctx context.Context, cfg Config, logger *slog.Logger) (http.Handler, error) {
	sessionStore, byID, index, err := buildSessions(cfg)
	if err != nil {
		return nil, err
	}

	var clientList []*core.Client
	var oidcIssuer, oidcClientID string

	if cfg.OIDC != nil {
		callback := strings.TrimSuffix(cfg.PublicURL, "/") + "/callback/oidc"
		oidcClient, err := clients.NewOIDCClient(clients.OIDCConfig{
			Name:         "oidc",
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			CallbackURL:  callback,
			Scopes:       cfg.OIDC.Scopes,
			Timeout:      cfg.OIDC.Timeout,
			Index:        index,
		}, logger)
		if err != nil {
			return nil, err
		}
		clientList = append(clientList, oidcClient)
		oidcIssuer = cfg.OIDC.Issuer
		oidcClientID = cfg.OIDC.ClientID
	}
	if cfg.Form != nil {
		authenticator := clients.NewMemoryPasswordAuthenticator("form", cfg.Form.Users)
		formClient, err := clients.NewFormClient(clients.FormConfig{
			Name:     "form",
			LoginURL: cfg.Form.LoginURL,
		}, authenticator)
		if err != nil {
			return nil, err
		}
		clientList = append(clientList, formClient)
	}
	if cfg.Bearer != nil {
		bearerClient, err := clients.NewBearerClient(clients.BearerConfig{
			Name:       "bearer",
			Issuer:     cfg.Bearer.Issuer,
			JWKSURL:    cfg.Bearer.JWKSURL,
			HMACSecret: []byte(cfg.Bearer.HMACSecret),
			Audiences:  cfg.Bearer.Audiences,
		})
		if err != nil {
			return nil, err
		}
		clientList = append(clientList, bearerClient)
	}

	registry, err := core.NewClients(clientList...)
	if err != nil {
		return nil, err
	}

	authorizers := make(map[string]core.Authorizer, len(cfg.RequiredRoles))
	for name, role := range cfg.RequiredRoles {
		authorizers[name] = core.RequireRole(role)
	}

	pipeline := &core.Config{
		Clients:      registry,
		Authorizers:  authorizers,
		SessionStore: sessionStore,
		Decision:     core.DefaultStorageDecision{},
		Logger:       logger,
		RenewSession: true,
	}

	adapter := &webhttp.Adapter{
		Security: core.NewSecurityLogic(pipeline),
		Callback: core.NewCallbackLogic(pipeline, core.PathClientNameResolver{}),
		Logout:   core.NewLogoutLogic(pipeline),
		Cookies: webhttp.CookieOptions{
			Domain:   cfg.Cookies.Domain,
			Secure:   cfg.Cookies.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(cfg.Sessions.TTL.Seconds()),
		},
		Logger: logger,
	}

	upstream, err := buildUpstream(cfg, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(webhttp.RequestIDMiddleware)
	r.Use(webhttp.LoggingMiddleware(logger))
	r.Use(webhttp.RecoveryMiddleware(logger))

	r.Get("/callback/{client}", adapter.CallbackHandler(cfg.DefaultURL))
	r.Post("/callback/{client}", adapter.CallbackHandler(cfg.DefaultURL))
	r.Get("/logout", adapter.LogoutHandler(cfg.DefaultURL, cfg.LogoutURLPattern))

	if oidcIssuer != "" && byID != nil && index != nil {
		keyFromRequest, err := clients.BackChannelKeyExtractor(ctx, oidcIssuer, oidcClientID, logger)
		if err != nil {
			logger.Warn("back-channel logout disabled", "error", err)
		} else {
			r.Post("/logout/backchannel", adapter.BackChannelLogoutHandler(index, byID, keyFromRequest))
		}
	}

	authorizerNames := strings.Join(sortedKeys(cfg.RequiredRoles), ",")
	r.Group(func(r chi.Router) {
		r.Use(adapter.Secure("", authorizerNames))
		r.Handle("/*", upstream)
	})

	return r, nil
}

func buildSessions(cfg Config) (core.SessionStore, core.SessionStoreByID, core.SessionKeyIndex, error) {
	switch cfg.Sessions.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Sessions.RedisAddr})
		rs := store.NewRedisStore(client, cfg.Sessions.TTL)
		return rs, rs, store.NewRedisIndex(client, cfg.Sessions.TTL), nil
	default:
		mem := store.NewMemoryStore(cfg.Sessions.TTL)
		return mem, mem, store.NewMemoryIndex(), nil
	}
}

func buildUpstream(cfg Config, logger *slog.Logger) (http.Handler, error) {
	if cfg.Upstream == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("authenticated\n"))
		}), nil
	}
	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream error", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
	return proxy, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
