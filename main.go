// Command memory-match-game starts the Memory Match Game server.
//
// Commands:
//  1. "serve" (default) – runs the HTTP server exposing the REST API, WebSocket updates, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "webhook-test" – sends a signed synthetic result to the configured webhook
//  4. "levels" – lists the configured levels
//
// Flags control host/port, config directory, session storage, logging, NATS
// publication and optional ngrok tunneling for external access during development.
// Every flag can also be set from the environment (see --help).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/memory-match-game/api"
	"github.com/wricardo/memory-match-game/game/config"
	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
	"github.com/wricardo/memory-match-game/game/session"
	"github.com/wricardo/memory-match-game/transport/mcp"
	natspub "github.com/wricardo/memory-match-game/transport/nats"
	"github.com/wricardo/memory-match-game/transport/webhook"
	"github.com/wricardo/memory-match-game/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Memory Match Game Server"
)

// Session store backends
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQL    = "sql"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "memory-match-game",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing settings.yaml and levels/", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "store", Value: StoreFile, Usage: "Session store: memory, file or sql", Sources: cli.EnvVars("SESSION_STORE")},
			&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for the file session store", Sources: cli.EnvVars("SESSIONS_DIR")},
			&cli.StringFlag{Name: "database-url", Value: "memory-match.db", Usage: "postgres:// DSN or SQLite path for the sql session store", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.StringFlag{Name: "nats-url", Usage: "Publish finished games to NATS when set", Sources: cli.EnvVars("NATS_URL")},
			&cli.DurationFlag{Name: "sweep-interval", Value: service.DefaultSweepInterval, Usage: "How often abandoned sessions are expired", Sources: cli.EnvVars("SWEEP_INTERVAL")},
			&cli.StringSliceFlag{Name: "allowed-origins", Usage: "CORS and WebSocket origins (default any)", Sources: cli.EnvVars("ALLOWED_ORIGINS")},
			&cli.StringFlag{Name: "static-dir", Usage: "Serve a game client from this directory", Sources: cli.EnvVars("STATIC_DIR")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.BoolFlag{Name: "log-json", Usage: "Log JSON instead of console output", Sources: cli.EnvVars("LOG_JSON")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("debug"), cmd.Bool("log-json"), os.Stderr)
			return ctx, nil
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action:  runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioMCP,
			},
			{
				Name:  "webhook-test",
				Usage: "Send a signed test payload to the webhook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Override the configured webhook URL"},
					&cli.StringFlag{Name: "secret", Usage: "Override the configured webhook secret"},
				},
				Action: runWebhookTest,
			},
			{
				Name:   "levels",
				Usage:  "List configured levels",
				Action: runLevels,
			},
		},
	}
}

// setupLogging configures the global zerolog logger
func setupLogging(debug, jsonOutput bool, out io.Writer) {
	if jsonOutput {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// app holds everything the commands share
type app struct {
	configs    *config.Manager
	store      service.SessionStore
	archiver   service.Archiver
	dispatcher *webhook.Dispatcher
	publisher  *natspub.Publisher
	service    service.GameService
	closeStore func() error
}

// loadConfig opens the config directory and applies webhook environment overrides
func loadConfig(dir string) (*config.Manager, error) {
	configManager, err := config.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if url, secret := os.Getenv("WEBHOOK_URL"), os.Getenv("WEBHOOK_SECRET"); url != "" || secret != "" {
		configManager.OverrideWebhook(url, secret)
		log.Info().Str("webhook_url", url).Msg("webhook target overridden from environment")
	}
	return configManager, nil
}

// buildStore opens the selected session store. archiver is nil for stores
// that do not keep sessions in memory.
func buildStore(kind, sessionsDir, databaseURL string) (service.SessionStore, service.Archiver, func() error, error) {
	switch kind {
	case StoreMemory:
		manager := session.NewManager()
		return manager, manager, func() error { return nil }, nil
	case StoreFile:
		persistence, err := session.NewFilePersistence(sessionsDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		manager := session.NewManagerWithPersistence(persistence)
		if err := manager.LoadPersistedSessions(); err != nil {
			log.Warn().Err(err).Msg("failed to load persisted sessions")
		}
		return manager, manager, manager.SaveAllSessions, nil
	case StoreSQL:
		db, err := session.OpenDatabase(databaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := session.NewGormStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, store.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown session store %q (use %s, %s or %s)", kind, StoreMemory, StoreFile, StoreSQL)
}

// newRuntime wires config, storage, result delivery and the game service.
// extra notifiers receive results alongside the webhook and NATS.
func newRuntime(cmd *cli.Command, extra ...service.Notifier) (*app, error) {
	configManager, err := loadConfig(cmd.String("config-dir"))
	if err != nil {
		return nil, err
	}

	store, archiver, closeStore, err := buildStore(cmd.String("store"), cmd.String("sessions-dir"), cmd.String("database-url"))
	if err != nil {
		return nil, err
	}

	a := &app{
		configs:    configManager,
		store:      store,
		archiver:   archiver,
		closeStore: closeStore,
		dispatcher: webhook.NewDispatcher(configManager),
	}

	notifiers := []service.Notifier{a.dispatcher}
	if url := cmd.String("nats-url"); url != "" {
		cfg := natspub.DefaultConfig()
		cfg.URL = url
		publisher, err := natspub.Connect(cfg)
		if err != nil {
			closeStore()
			return nil, err
		}
		a.publisher = publisher
		notifiers = append(notifiers, publisher)
		log.Info().Str("nats_url", url).Msg("publishing results to NATS")
	}
	notifiers = append(notifiers, extra...)

	a.service = service.NewGameService(store, configManager, engine.NewEngine(),
		service.WithNotifiers(notifiers...),
		service.WithWebhookTester(a.dispatcher),
	)
	a.dispatcher.Start()

	log.Info().
		Str("store", cmd.String("store")).
		Int("levels", len(configManager.Levels())).
		Msg("services initialized")
	return a, nil
}

// Close flushes pending deliveries and releases connections
func (a *app) Close(ctx context.Context) {
	if err := a.dispatcher.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("webhook dispatcher did not drain")
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if err := a.closeStore(); err != nil {
		log.Warn().Err(err).Msg("failed to close session store")
	}
}

// originChecker accepts WebSocket upgrades from the allowed origins, or any origin when none are set
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(origins) == 0 || origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}

// newRouter mounts the API at the root and the MCP JSON-RPC endpoint at /mcp
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// runServe starts the HTTP server with REST API, WebSocket hub, and an /mcp endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	origins := cmd.StringSlice("allowed-origins")
	hub := websocket.NewHub(websocket.WithCheckOrigin(originChecker(origins)))
	go hub.Run(ctx)

	a, err := newRuntime(cmd, hub)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	sweeperOpts := []service.SweeperOption{service.WithSweepInterval(cmd.Duration("sweep-interval"))}
	if a.archiver != nil {
		sweeperOpts = append(sweeperOpts, service.WithArchiver(a.archiver, service.DefaultArchiveAfter))
	}
	sweeper, err := service.NewSweeper(a.service, sweeperOpts...)
	if err != nil {
		a.Close(context.Background())
		return err
	}
	sweeper.Start()

	apiOpts := []api.Option{api.WithAllowedOrigins(origins)}
	if dir := cmd.String("static-dir"); dir != "" {
		apiOpts = append(apiOpts, api.WithStaticDir(dir))
	}
	apiServer := api.NewServer(a.service, hub, apiOpts...)

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), int(cmd.Int("port")))
	mainRouter := newRouter(apiServer, mcp.NewClient("http://"+addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().
			Str("addr", addr).
			Str("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msgf("%s v%s listening", AppName, Version)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
			cancel()
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), mainRouter)
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := sweeper.Stop(); err != nil {
		log.Error().Err(err).Msg("sweeper shutdown error")
	}
	a.Close(shutdownCtx)

	wg.Wait()
	log.Info().Msg("server stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// runNgrok serves handler through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Info().Str("domain", domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	log.Info().
		Str("url", ngrokURL).
		Str("websocket", ngrokURL+"/ws?session=<session_id>").
		Str("mcp", ngrokURL+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// externalAPI reports whether a game server already answers at baseURL
func externalAPI(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses a game server already
// listening on host:port; otherwise it starts an internal HTTP API bound to a
// random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	externalURL := fmt.Sprintf("http://%s:%d", cmd.String("host"), int(cmd.Int("port")))

	baseURL := externalURL
	if externalAPI(ctx, externalURL) {
		log.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	} else {
		log.Info().Msg("no external API server found, starting internal HTTP server")

		a, err := newRuntime(cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer a.Close(context.Background())

		sweeper, err := service.NewSweeper(a.service, service.WithSweepInterval(cmd.Duration("sweep-interval")))
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		httpServer := &http.Server{Handler: api.NewServer(a.service, nil)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
		log.Info().Str("url", baseURL).Msg("internal HTTP server started for MCP stdio")
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// runWebhookTest sends one signed test payload and prints the receiver's answer
func runWebhookTest(ctx context.Context, cmd *cli.Command) error {
	configManager, err := loadConfig(cmd.String("config-dir"))
	if err != nil {
		return err
	}

	url, secret := configManager.WebhookEndpoint()
	if v := cmd.String("url"); v != "" {
		url = v
	}
	if v := cmd.String("secret"); v != "" {
		secret = v
	}
	if url == "" {
		return cli.Exit("webhook URL is not configured (settings.yaml, WEBHOOK_URL or --url)", 1)
	}

	dispatcher := webhook.NewDispatcher(configManager)
	res := dispatcher.Test(ctx, service.WebhookTarget{URL: url, Secret: secret})

	fmt.Fprintf(cmd.Root().Writer, "%s\n", res.Message)
	if !res.Success {
		return cli.Exit("webhook test failed", 1)
	}
	fmt.Fprintln(cmd.Root().Writer, "✅ Webhook accepted the test payload")
	return nil
}

// runLevels prints the configured levels
func runLevels(ctx context.Context, cmd *cli.Command) error {
	configManager, err := loadConfig(cmd.String("config-dir"))
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	for _, l := range configManager.Levels() {
		clock := "no time limit"
		if l.Limited() {
			clock = fmt.Sprintf("%ds", l.TimeLimit)
		}
		var flags []string
		if l.Difficulty {
			flags = append(flags, "difficulty")
		}
		if !l.Active {
			flags = append(flags, "inactive")
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintf(w, "%-12s %-16s %2d pairs  %-13s +%d / -%d%s\n",
			l.ID, l.Name, l.Pairs, clock, l.PointsReward, l.PointsPenalty, suffix)
	}
	return nil
}
