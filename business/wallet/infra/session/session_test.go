package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// recordingLogger keeps the key/values of Info calls by message.
type recordingLogger struct {
	mockLogger
	infos map[string][]any
}

func (r *recordingLogger) Info(ctx context.Context, msg string, args ...any) {
	if r.infos == nil {
		r.infos = make(map[string][]any)
	}
	r.infos[msg] = args
}

func field(args []any, key string) (any, bool) {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1], true
		}
	}
	return nil, false
}

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

// testStoreContract exercises behavior every backend shares.
func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "wallet_connected"); err != nil || ok {
		t.Fatalf("expected missing marker, ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "wallet_connected", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "wallet_type", "injected"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := store.Get(ctx, "wallet_connected")
	if err != nil || !ok || v != "true" {
		t.Errorf("Get = %q, %v, %v; want true", v, ok, err)
	}

	if err := store.Set(ctx, "wallet_type", "walletconnect"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ := store.Get(ctx, "wallet_type"); v != "walletconnect" {
		t.Errorf("expected overwritten value, got %q", v)
	}

	if err := store.Delete(ctx, "wallet_connected", "wallet_type"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, k := range []string{"wallet_connected", "wallet_type"} {
		if _, ok, _ := store.Get(ctx, k); ok {
			t.Errorf("expected %s deleted", k)
		}
	}

	if err := store.Delete(ctx, "wallet_connected"); err != nil {
		t.Errorf("deleting a missing marker: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	store, err := NewFileStore(path, 0)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	testStoreContract(t, store)

	t.Run("survives reopen", func(t *testing.T) {
		ctx := context.Background()
		if err := store.Set(ctx, "wallet_connected", "true"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		id := store.SessionID()
		if id == "" {
			t.Fatal("expected a session id after the first write")
		}

		reopened, err := NewFileStore(path, 0)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if v, ok, _ := reopened.Get(ctx, "wallet_connected"); !ok || v != "true" {
			t.Errorf("expected marker after reopen, got %q %v", v, ok)
		}
		if reopened.SessionID() != id {
			t.Errorf("expected session id %s, got %s", id, reopened.SessionID())
		}
	})

	t.Run("removes file when empty", func(t *testing.T) {
		if err := store.Delete(context.Background(), "wallet_connected"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("expected file removed, stat err = %v", err)
		}
	})
}

func TestFileStore_Expiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	store, err := NewFileStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Set(ctx, "wallet_connected", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(30 * time.Minute)
	if _, ok, _ := store.Get(ctx, "wallet_connected"); !ok {
		t.Error("expected marker within ttl")
	}

	now = now.Add(time.Hour)
	if _, ok, _ := store.Get(ctx, "wallet_connected"); ok {
		t.Error("expected marker expired")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("markers: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := NewFileStore(path, 0)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, _, err = store.Get(context.Background(), "wallet_connected")
	if apperror.GetCode(err) != apperror.CodeMarkerStoreError {
		t.Errorf("expected %s, got %v", apperror.CodeMarkerStoreError, err)
	}
}

func TestRedisStore(t *testing.T) {
	mr := newMiniredis(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "genip:"})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	testStoreContract(t, store)

	t.Run("prefixes keys", func(t *testing.T) {
		if err := store.Set(context.Background(), "wallet_connected", "true"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got, err := mr.Get("genip:wallet_connected"); err != nil || got != "true" {
			t.Errorf("expected prefixed key, got %q err %v", got, err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func TestRedisStore_TTL(t *testing.T) {
	mr := newMiniredis(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "", time.Minute)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.Set(ctx, "wallet_connected", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("wallet_connected"); ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %s", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "wallet_connected"); ok {
		t.Error("expected marker expired")
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := newMiniredis(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	if apperror.GetCode(err) != apperror.CodeMarkerStoreError {
		t.Errorf("expected %s, got %v", apperror.CodeMarkerStoreError, err)
	}
}

func TestNew(t *testing.T) {
	mr := newMiniredis(t)

	tests := []struct {
		name     string
		cfg      Config
		wantType string
		wantCode apperror.Code
	}{
		{name: "default is memory", cfg: Config{}, wantType: "*session.MemoryStore"},
		{name: "memory", cfg: Config{Backend: BackendMemory}, wantType: "*session.MemoryStore"},
		{name: "file", cfg: Config{Backend: BackendFile, FilePath: filepath.Join(t.TempDir(), "s.yaml")}, wantType: "*session.FileStore"},
		{name: "redis", cfg: Config{Backend: BackendRedis, RedisAddr: mr.Addr()}, wantType: "*session.RedisStore"},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantCode: apperror.CodeConfigurationError},
		{name: "file without path", cfg: Config{Backend: BackendFile}, wantCode: apperror.CodeMarkerStoreError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(context.Background(), tt.cfg, &mockLogger{})
			if tt.wantCode != "" {
				if apperror.GetCode(err) != tt.wantCode {
					t.Errorf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer store.Close()
			if got := typeName(store); got != tt.wantType {
				t.Errorf("expected %s, got %s", tt.wantType, got)
			}
		})
	}
}

func TestNew_LogsSessionID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.yaml")

	first, err := NewFileStore(path, 0)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := first.Set(ctx, "wallet_connected", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	t.Run("file store with a session", func(t *testing.T) {
		log := &recordingLogger{}
		store, err := New(ctx, Config{Backend: BackendFile, FilePath: path}, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer store.Close()

		got, ok := field(log.infos["session store ready"], "session_id")
		if !ok || got != first.SessionID() {
			t.Errorf("expected session_id %q logged, got %v", first.SessionID(), got)
		}
	})

	t.Run("memory store has none", func(t *testing.T) {
		log := &recordingLogger{}
		store, err := New(ctx, Config{Backend: BackendMemory}, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer store.Close()

		if _, ok := field(log.infos["session store ready"], "session_id"); ok {
			t.Error("expected no session_id for the memory store")
		}
	})
}

func typeName(v any) string {
	switch v.(type) {
	case *MemoryStore:
		return "*session.MemoryStore"
	case *FileStore:
		return "*session.FileStore"
	case *RedisStore:
		return "*session.RedisStore"
	}
	return "unknown"
}
