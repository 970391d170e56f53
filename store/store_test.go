package store

import (
	"os"
	"path/filepath"
	"testing"
)

// testCredentialStore exercises the behavior every backend shares.
func testCredentialStore(t *testing.T, s CredentialStore) {
	t.Helper()

	creds, err := s.Load()
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if !creds.Empty() {
		t.Fatalf("Load on empty store = %+v, want empty", creds)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}

	want := Credentials{User: `{"id":1,"name":"Ada"}`, Token: "tok-1"}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := s.Load(); err != nil || got != want {
		t.Fatalf("Load = %+v, %v; want %+v", got, err, want)
	}

	replaced := Credentials{User: `{"id":2,"name":"Grace"}`, Token: "tok-2"}
	if err := s.Save(replaced); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Load(); got != replaced {
		t.Errorf("Load after replace = %+v, want %+v", got, replaced)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Load(); !got.Empty() {
		t.Errorf("Load after Clear = %+v, want empty", got)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testCredentialStore(t, s)
}

func TestMemoryStoreHalfWritten(t *testing.T) {
	s := NewMemoryStore()
	s.Set(KeyToken, "tok")

	creds, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.User != "" || creds.Token != "tok" {
		t.Errorf("Load = %+v, want token only", creds)
	}
	if creds.Empty() {
		t.Error("half-written credentials are not empty")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	testCredentialStore(t, s)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	want := Credentials{User: `{"id":1}`, Token: "tok-1"}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if got, err := s.Load(); err != nil || got != want {
		t.Errorf("Load after reopen = %+v, %v; want %+v", got, err, want)
	}
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("IPTRAIL_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("IPTRAIL_TEST_MYSQL_DSN not set")
	}

	s, err := NewMySQLFromDSN(dsn, "test-"+filepath.Base(t.TempDir()))
	if err != nil {
		t.Fatalf("NewMySQLFromDSN: %v", err)
	}
	defer s.Close()
	testCredentialStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("IPTRAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("IPTRAIL_TEST_REDIS_ADDR not set")
	}

	s, err := NewRedisFromConfig(RedisConfig{
		Addr:      addr,
		KeyPrefix: "iptrail-test:" + filepath.Base(t.TempDir()) + ":",
	})
	if err != nil {
		t.Fatalf("NewRedisFromConfig: %v", err)
	}
	defer s.Close()
	testCredentialStore(t, s)
}

func TestRedisKeyPrefix(t *testing.T) {
	s := NewRedisStore(nil, "")
	if got := s.key(KeyToken); got != "iptrail:token" {
		t.Errorf("key = %q, want iptrail:token", got)
	}

	s = NewRedisStore(nil, "iptrail:work:")
	if got := s.key(KeyUser); got != "iptrail:work:user" {
		t.Errorf("key = %q, want iptrail:work:user", got)
	}
}
