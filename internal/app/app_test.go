package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"noteshare-go/internal/config"
	"noteshare-go/internal/ns"
	"noteshare-go/internal/server"
	"noteshare-go/internal/testutil"
)

func newTestApp(t *testing.T) (*App, *testutil.StubClock) {
	t.Helper()
	cfg, err := config.NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	cfg.Database.Type = "memory"
	cfg.Storage.Type = "memory"
	cfg.Encryption.Type = "test"
	cfg.Snapshot.Type = "memory"
	cfg.Server.BaseURL = "https://notes.example.com"

	clock := testutil.FixedClock()
	a, err := New(cfg, "test", Options{Clock: clock})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, clock
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg, err := config.NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	cfg.Storage.ShardDepth = 5
	if _, err := New(cfg, "test", Options{}); err == nil {
		t.Error("New() with shard depth 5 succeeded")
	}
}

func TestApp_UploadSweepLifecycle(t *testing.T) {
	ctx := context.Background()
	a, clock := newTestApp(t)

	key, err := a.CreateUser(ctx)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/file/upload", strings.NewReader("<p>lifecycle</p>"))
	req.Header.Set(server.HeaderUID, key.UID)
	req.Header.Set(server.HeaderNonce, "n1")
	req.Header.Set(server.HeaderSignature, ns.Sign(key.KeyHash, "n1", a.cfg.Auth.SigningSalt))
	req.Header.Set(server.HeaderFileType, "html")
	req.Header.Set(server.HeaderExpiration, "60")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var up struct {
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}

	files, err := a.ListUserFiles(ctx, key.UID)
	if err != nil {
		t.Fatalf("ListUserFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].Filename != up.Filename || files[0].URL != up.URL {
		t.Fatalf("ListUserFiles() = %+v, want %s", files, up.URL)
	}

	clock.Advance(time.Hour)
	res, err := a.RunSweep(ctx)
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if res.Purged != 1 {
		t.Errorf("Purged = %d, want 1", res.Purged)
	}

	runs, err := a.SweepHistory(ctx, 5)
	if err != nil {
		t.Fatalf("SweepHistory() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != ns.SweepSuccess {
		t.Errorf("SweepHistory() = %+v", runs)
	}

	files, _ = a.ListUserFiles(ctx, key.UID)
	if len(files) != 0 {
		t.Errorf("files after sweep = %d, want 0", len(files))
	}
}

func TestApp_RotateUser(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)

	first, err := a.CreateUser(ctx)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	second, err := a.RotateUser(ctx, first.UID)
	if err != nil {
		t.Fatalf("RotateUser() error = %v", err)
	}
	if second.APIKey == first.APIKey {
		t.Error("RotateUser() returned the old key")
	}

	users, err := a.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].RotatedAt == nil {
		t.Errorf("ListUsers() = %+v", users)
	}

	if _, err := a.RotateUser(ctx, "nobody"); !errors.Is(err, ns.ErrAuthUserUnknown) {
		t.Errorf("RotateUser(nobody) error = %v, want ErrAuthUserUnknown", err)
	}
	if _, err := a.ListUserFiles(ctx, "nobody"); !errors.Is(err, ns.ErrAuthUserUnknown) {
		t.Errorf("ListUserFiles(nobody) error = %v, want ErrAuthUserUnknown", err)
	}
}

func TestApp_Snapshot(t *testing.T) {
	a, _ := newTestApp(t)

	res, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !strings.HasPrefix(res.Key, "index-20240115T103000Z") {
		t.Errorf("Key = %q", res.Key)
	}
}

func TestApp_Snapshot_NoKeys(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.Encryption.Type = "age"

	if _, err := a.Snapshot(context.Background()); err == nil || !strings.Contains(err.Error(), "keys init") {
		t.Errorf("Snapshot() error = %v, want missing keys", err)
	}
}
