package suite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"magiclink/internal/app"
	"magiclink/internal/config"
	"magiclink/internal/lib/logger/handlers/slogdiscard"
	"magiclink/internal/lib/migrator"
	"magiclink/internal/storage/sqlite"
	"magiclink/migrations"
)

const (
	SuccessURL = "https://app.example/cb"
	ErrorURL   = "https://app.example/err"
)

type Suite struct {
	*testing.T
	Cfg     *config.Config
	Storage *sqlite.Storage
	Server  *httptest.Server
	Client  *http.Client
}

// New runs the wired application in-process on a fresh SQLite database.
// An empty errorURL leaves REDIRECT_URL_ERROR unset.
func New(t *testing.T, errorURL string) (context.Context, *Suite) {
	t.Helper()
	t.Parallel()

	path := filepath.Join(t.TempDir(), "magiclink.db")
	if _, err := migrator.Up(migrations.SQLite, "sqlite", migrator.SQLiteURL(path)); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	storage, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	cfg := &config.Config{
		Env:             "local",
		RefreshTokenTTL: time.Hour,
		TicketTTL:       time.Hour,
		Redirect: config.RedirectConfig{
			Success: SuccessURL,
			Error:   errorURL,
		},
		Storage: config.StorageConfig{Driver: config.StorageSQLite, Path: path},
	}

	application, err := app.NewWithStorage(slogdiscard.NewDiscardLogger(), cfg, storage)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}

	server := httptest.NewServer(application.Handler)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	t.Cleanup(func() {
		t.Helper()
		cancel()
		server.Close()
		_ = storage.Close()
	})

	return ctx, &Suite{
		T:       t,
		Cfg:     cfg,
		Storage: storage,
		Server:  server,
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}
