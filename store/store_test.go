package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/xerrors"
)

func newTestStore(t *testing.T, driver DriverType, ser string) Store {
	t.Helper()
	st, err := New(&Config{
		Driver:     driver,
		RootDir:    t.TempDir(),
		Serializer: ser,
	}, WithLogger(clog.Discard()))
	if err != nil {
		t.Fatalf("failed to create %s store: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleRecord() *Record {
	return &Record{
		Endpoint:           "ai_api",
		State:              StateOpen,
		FailureCount:       5,
		SuccessCount:       0,
		FailureThreshold:   5,
		OpenTimeoutSeconds: 60,
		OpenTime:           1700000000,
	}
}

func TestNew_ConfigNil(t *testing.T) {
	_, err := New(nil)
	if err != ErrConfigNil {
		t.Fatalf("expected ErrConfigNil, got: %v", err)
	}
}

func TestNew_InvalidDriver(t *testing.T) {
	_, err := New(&Config{Driver: "invalid"})
	if err == nil {
		t.Fatal("expected error for invalid driver")
	}
}

func TestNew_InvalidSerializer(t *testing.T) {
	_, err := New(&Config{Driver: DriverMemory, Serializer: "xml"})
	if err == nil {
		t.Fatal("expected error for invalid serializer")
	}
}

func TestNew_RedisRequiresConnector(t *testing.T) {
	_, err := New(&Config{Driver: DriverRedis})
	if err == nil {
		t.Fatal("expected error for missing redis connector")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []DriverType{DriverMemory, DriverFile} {
		for _, ser := range []string{"json", "msgpack"} {
			t.Run(string(driver)+"/"+ser, func(t *testing.T) {
				st := newTestStore(t, driver, ser)

				want := sampleRecord()
				if err := st.Save(ctx, "ai_api", want); err != nil {
					t.Fatalf("Save failed: %v", err)
				}

				got, err := st.Load(ctx, "ai_api")
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				if *got != *want {
					t.Fatalf("record mismatch: got %+v, want %+v", got, want)
				}
			})
		}
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []DriverType{DriverMemory, DriverFile} {
		t.Run(string(driver), func(t *testing.T) {
			st := newTestStore(t, driver, "json")

			_, err := st.Load(ctx, "never_seen")
			if !xerrors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []DriverType{DriverMemory, DriverFile} {
		t.Run(string(driver), func(t *testing.T) {
			st := newTestStore(t, driver, "json")

			if err := st.Save(ctx, "ep", sampleRecord()); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := st.Delete(ctx, "ep"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := st.Load(ctx, "ep"); !xerrors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got: %v", err)
			}
			// 删除不存在的记录不报错
			if err := st.Delete(ctx, "ep"); err != nil {
				t.Fatalf("second Delete failed: %v", err)
			}
		})
	}
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, DriverFile, "json")

	first := sampleRecord()
	if err := st.Save(ctx, "ep", first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := sampleRecord()
	second.State = StateClosed
	second.FailureCount = 0
	second.OpenTime = 0
	if err := st.Save(ctx, "ep", second); err != nil {
		t.Fatalf("overwrite Save failed: %v", err)
	}

	got, err := st.Load(ctx, "ep")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.State != StateClosed || got.FailureCount != 0 {
		t.Fatalf("expected overwritten record, got %+v", got)
	}
}

func TestFileStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := New(&Config{Driver: DriverFile, RootDir: dir}, WithLogger(clog.Discard()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	// 手工写入损坏的记录文件
	if err := os.WriteFile(filepath.Join(dir, "broken.state"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	// 损坏的记录视为不存在，绝不 panic
	_, err = st.Load(ctx, "broken")
	if !xerrors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for corrupt record, got: %v", err)
	}
}

func TestFileStore_NoTempFileLeftover(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := New(&Config{Driver: DriverFile, RootDir: dir})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	for i := 0; i < 10; i++ {
		if err := st.Save(ctx, "ep", sampleRecord()); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read state dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one record file, got %d", len(entries))
	}
}

func TestSanitizeEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ai_api", "ai_api"},
		{"gh-api.v3", "gh-api.v3"},
		{"https://api.example.com/v1", "https___api.example.com_v1"},
		{"ep with spaces", "ep_with_spaces"},
		{"../escape", ".._escape"},
	}
	for _, c := range cases {
		if got := SanitizeEndpoint(c.in); got != c.want {
			t.Errorf("SanitizeEndpoint(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRecord_Elapsed(t *testing.T) {
	r := sampleRecord()

	now := time.Unix(1700000030, 0)
	if got := r.OpenElapsed(now); got.Seconds() != 30 {
		t.Fatalf("expected 30s open elapsed, got %v", got)
	}
	if got := r.HalfOpenElapsed(now); got != 0 {
		t.Fatalf("expected 0 half-open elapsed, got %v", got)
	}
}
