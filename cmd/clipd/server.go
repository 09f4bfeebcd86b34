package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/clipd/internal/api"
	"github.com/kalambet/clipd/internal/autofill"
	"github.com/kalambet/clipd/internal/config"
	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/prefs"
	"github.com/kalambet/clipd/internal/proxy"
	"github.com/kalambet/clipd/internal/schemacache"
	"github.com/kalambet/clipd/internal/session"
	"github.com/kalambet/clipd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clipd daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running clipd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clipd status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "clipd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// loadConfig is swapped in tests.
var loadConfig = config.Load

// notionClients holds one rate-limited client per integration token.
type notionClients struct {
	mu      sync.Mutex
	clients map[string]*notion.Client
}

func (p *notionClients) get(token string) *notion.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients == nil {
		p.clients = make(map[string]*notion.Client)
	}
	c, ok := p.clients[token]
	if !ok {
		c = notion.NewClient(token)
		p.clients[token] = c
	}
	return c
}

// credentials reads the current configuration on every call, so a changed
// token or database takes effect for the next session.
func credentials(ctx context.Context) (session.Credentials, error) {
	cfg, err := loadConfig()
	if err != nil {
		return session.Credentials{}, fmt.Errorf("loading config: %w", err)
	}
	token, id, err := cfg.NotionCredentials()
	if err != nil {
		return session.Credentials{}, err
	}
	c := session.Credentials{
		NotionToken: token,
		DatabaseID:  id,
		URLProperty: cfg.Notion.URLProperty,
	}
	if cfg.AIEnabled() {
		c.AIKey = strings.TrimSpace(cfg.AI.APIKey)
	}
	return c, nil
}

// buildSessionDeps wires the collaborators shared by every session.
func buildSessionDeps(cfg config.Config, store *storage.Store, clients *notionClients, cache *schemacache.Cache, pm *prefs.Manager) session.Deps {
	return session.Deps{
		Credentials: credentials,
		NewStore: func(c session.Credentials) session.Store {
			return session.NotionStore{Client: clients.get(c.NotionToken), DatabaseID: c.DatabaseID}
		},
		NewFiller: func(c session.Credentials) session.Filler {
			if c.AIKey == "" {
				return nil
			}
			client := proxy.NewClientWithBaseURL(c.AIKey, cfg.AI.BaseURL)
			return autofill.NewFiller(client, cfg.AI.Model, cfg.AI.Timeout)
		},
		Cache:   cache,
		Prefs:   pm,
		Fetcher: extract.NewFetcher(),
		History: store,
		Extract: extract.Options{MaxContentChars: cfg.Extract.MaxContentChars},
		OnTransition: func(v session.View) {
			slog.Debug("session transition", "session", v.ID, "phase", v.Phase, "mode", v.Mode, "activity", v.Activity)
		},
	}
}

func runServer(withMCP bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)
	slog.Info("clipd starting", "version", version)

	created, err := config.EnsureAPIToken(&cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	if created {
		slog.Info("generated API bearer token")
	}

	if _, _, err := cfg.NotionCredentials(); err != nil {
		printWarning("Notion is not configured yet: %v", err)
		printWarning("Set it with `clipd secrets set notion.token` and `clipd config set notion.database_id <id>`")
	}
	if !cfg.AIEnabled() {
		slog.Info("auto-fill disabled, no AI key configured")
	}

	// Check whether a daemon is already running via the health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	clients := &notionClients{}
	cache := schemacache.New(store, cfg.Schema.CacheTTL)
	pm := prefs.NewManager(store)
	sessions := session.NewManager(buildSessionDeps(cfg, store, clients, cache, pm))
	defer sessions.CloseAll()

	// Keep cached schemas warm for the configured database.
	if token, _, err := cfg.NotionCredentials(); err == nil {
		refresher := schemacache.NewRefresher(cache, schemacache.NotionFetcher{Client: clients.get(token)}, time.Minute)
		go refresher.Run(ctx)
	}

	appDeps := api.AppDeps{
		Sessions: sessions,
		Prefs:    pm,
		History:  store,
		Token:    cfg.API.Token,
	}
	if cfg.AIEnabled() {
		appDeps.Models = proxy.NewClientWithBaseURL(cfg.AI.APIKey, cfg.AI.BaseURL)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewAppHandler(appDeps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Sessions: sessions, History: store})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("clipd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("clipd is not running (no PID file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop clipd (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to clipd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if _, id, err := cfg.NotionCredentials(); err != nil {
		printStatus("Notion", "%s", colorize(colorYellow, err.Error()))
	} else {
		printStatus("Database", "%s", id)
	}
	if cfg.AIEnabled() {
		printStatus("Auto-fill", "%s", cfg.AI.Model)
	} else {
		printStatus("Auto-fill", "disabled")
	}

	if running && cfg.API.Token != "" {
		capResp, err := apiGet(client, serverURL+"/captures?limit=100", cfg.API.Token)
		if err == nil {
			var caps []captureRecord
			if decodeJSON(capResp, &caps) == nil {
				printStatus("Captures", "%s", countLabel(len(caps), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
