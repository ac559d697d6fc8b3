package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e, err := s.Record(ctx, Entry{
		Session: "s1",
		Source:  "print 1 + 2;",
		Status:  StatusSuccess,
		Result:  "false",
		Transcript: Transcript{
			Output:        []string{"3"},
			Instructions:  5,
			DurationNanos: int64(time.Millisecond),
		},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == "" {
		t.Fatal("Record did not assign an id")
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("Record did not assign a timestamp")
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Source != e.Source || got.Session != "s1" || got.Result != "false" {
		t.Fatalf("Get = %+v, want %+v", got, e)
	}
	if len(got.Transcript.Output) != 1 || got.Transcript.Output[0] != "3" {
		t.Fatalf("transcript output = %v", got.Transcript.Output)
	}
	if got.Transcript.Instructions != 5 {
		t.Fatalf("instructions = %d, want 5", got.Transcript.Instructions)
	}
	if got.Transcript.Duration() != time.Millisecond {
		t.Fatalf("duration = %s", got.Transcript.Duration())
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("created = %s, want %s", got.CreatedAt, e.CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestRecentOrderingAndSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	tick := 0
	now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	t.Cleanup(func() { now = time.Now })

	for i, src := range []string{"1", "2", "3", "4"} {
		session := "a"
		if i%2 == 1 {
			session = "b"
		}
		if _, err := s.Record(ctx, Entry{Session: session, Source: src}); err != nil {
			t.Fatalf("Record %s: %v", src, err)
		}
	}

	tests := []struct {
		session string
		limit   int
		want    []string
	}{
		{"", 10, []string{"4", "3", "2", "1"}},
		{"", 2, []string{"4", "3"}},
		{"a", 10, []string{"3", "1"}},
		{"b", 1, []string{"4"}},
		{"c", 10, nil},
	}
	for _, tt := range tests {
		got, err := s.Recent(ctx, tt.session, tt.limit)
		if err != nil {
			t.Fatalf("Recent(%q, %d): %v", tt.session, tt.limit, err)
		}
		var sources []string
		for _, e := range got {
			sources = append(sources, e.Source)
		}
		if len(sources) != len(tt.want) {
			t.Fatalf("Recent(%q, %d) = %v, want %v", tt.session, tt.limit, sources, tt.want)
		}
		for i := range sources {
			if sources[i] != tt.want[i] {
				t.Fatalf("Recent(%q, %d) = %v, want %v", tt.session, tt.limit, sources, tt.want)
			}
		}
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, session := range []string{"a", "a", "b"} {
		if _, err := s.Record(ctx, Entry{Session: session, Source: "x"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := s.Clear(ctx, "a")
	if err != nil {
		t.Fatalf("Clear(a): %v", err)
	}
	if n != 2 {
		t.Fatalf("Clear(a) removed %d, want 2", n)
	}
	n, err = s.Clear(ctx, "")
	if err != nil {
		t.Fatalf("Clear(all): %v", err)
	}
	if n != 1 {
		t.Fatalf("Clear(all) removed %d, want 1", n)
	}
	rest, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("entries after clear = %d", len(rest))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e, err := s.Record(context.Background(), Entry{Session: "s", Source: "1 + 1", Status: StatusRuntimeError})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Status != StatusRuntimeError {
		t.Fatalf("status = %s, want runtime error", got.Status)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusSuccess:      "success",
		StatusCompileError: "compile error",
		StatusRuntimeError: "runtime error",
		Status(9):          "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
