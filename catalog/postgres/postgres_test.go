package postgres

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/justapithecus/catalogfeed/catalog"
	"github.com/justapithecus/catalogfeed/types"
)

type fakeRows struct {
	ids  []int64
	pos  int
	err  error
	done bool
}

func (r *fakeRows) Close()                                       { r.done = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.ids) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.ids[r.pos-1]
	return nil
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	rows     *fakeRows
	queryErr error
	row      fakeRow

	gotSQL  string
	gotArgs []any
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.gotSQL, f.gotArgs = sql, args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.gotSQL, f.gotArgs = sql, args
	return f.row
}

func TestStore_ListIDs(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{ids: []int64{16, 18, 19}}}
	s := &Store{db: db}

	ids, err := s.ListIDs(t.Context(), 15, 15, catalog.DefaultFilter())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []types.ItemID{16, 18, 19}) {
		t.Errorf("ids = %v", ids)
	}
	if !db.rows.done {
		t.Error("rows not closed")
	}
	if db.gotSQL != listIDsSQL {
		t.Error("unexpected query")
	}
	if len(db.gotArgs) != 4 {
		t.Fatalf("args = %v", db.gotArgs)
	}
	if kinds := db.gotArgs[0].([]string); !slices.Equal(kinds, []string{"simple", "variable"}) {
		t.Errorf("kinds arg = %v", kinds)
	}
	if kinds := db.gotArgs[1].([]string); !slices.Equal(kinds, []string{"variation"}) {
		t.Errorf("child kinds arg = %v", kinds)
	}
	if db.gotArgs[2] != int64(15) || db.gotArgs[3] != int64(15) {
		t.Errorf("limit/offset args = %v %v", db.gotArgs[2], db.gotArgs[3])
	}
}

func TestStore_ListIDsErrors(t *testing.T) {
	boom := errors.New("conn refused")

	s := &Store{db: &fakeDB{queryErr: boom}}
	if _, err := s.ListIDs(t.Context(), 0, 15, catalog.DefaultFilter()); !errors.Is(err, boom) {
		t.Errorf("query error = %v, want wrapped %v", err, boom)
	}

	s = &Store{db: &fakeDB{rows: &fakeRows{err: boom}}}
	if _, err := s.ListIDs(t.Context(), 0, 15, catalog.DefaultFilter()); !errors.Is(err, boom) {
		t.Errorf("iteration error = %v, want wrapped %v", err, boom)
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	s := &Store{db: &fakeDB{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}}
	_, err := s.Load(t.Context(), 17)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Load error = %v, want catalog.ErrNotFound", err)
	}
}

func TestStore_Load(t *testing.T) {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	scan := func(dest ...any) error {
		if len(dest) != 16 {
			t.Fatalf("scan targets = %d, want 16", len(dest))
		}
		*(dest[0].(*int64)) = 18
		*(dest[1].(*int64)) = 10
		*(dest[2].(*string)) = "variation"
		*(dest[3].(*string)) = "publish"
		*(dest[4].(*string)) = "publish"
		*(dest[5].(*string)) = "Shirt (red)"
		*(dest[9].(*int64)) = 1999
		*(dest[11].(*string)) = "USD"
		*(dest[12].(*string)) = "instock"
		*(dest[13].(*string)) = "https://shop.example/p/18"
		*(dest[15].(*time.Time)) = updated
		return nil
	}
	db := &fakeDB{row: fakeRow{scan: scan}}
	s := &Store{db: db}

	item, err := s.Load(t.Context(), 18)
	if err != nil {
		t.Fatal(err)
	}
	if db.gotArgs[0] != int64(18) {
		t.Errorf("id arg = %v", db.gotArgs[0])
	}
	if item.ID != 18 || item.ParentID != 10 || item.Kind != types.KindVariation {
		t.Errorf("identity = %+v", item)
	}
	if item.ParentStatus != types.StatusPublish || item.StockStatus != types.StockInStock {
		t.Errorf("status fields = %+v", item)
	}
	if item.PriceCents != 1999 || item.Currency != "USD" || !item.UpdatedAt.Equal(updated) {
		t.Errorf("price fields = %+v", item)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpen_BadDSN(t *testing.T) {
	if _, err := Open(t.Context(), Config{DSN: "://not a dsn"}); err == nil {
		t.Error("expected error for malformed dsn")
	}
}
