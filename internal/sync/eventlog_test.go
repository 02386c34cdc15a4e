package syncx_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mind-engage/mindengage-testgen/internal/db"
	syncx "github.com/mind-engage/mindengage-testgen/internal/sync"
)

func TestEventRepo_AppendList(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:eventlog?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	repo := syncx.NewEventRepo(conn, "")
	for _, key := range []string{"i1", "i2", "i3"} {
		ev, err := syncx.NewEvent(syncx.TypeTestFinished, key, map[string]any{"submitted": true})
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := repo.List(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Key != "i1" || all[0].SiteID != "local" || all[0].Type != syncx.TypeTestFinished {
		t.Fatalf("events = %+v", all)
	}
	var data map[string]bool
	if err := json.Unmarshal([]byte(all[0].DataJSON), &data); err != nil || !data["submitted"] {
		t.Fatalf("payload = %s, %v", all[0].DataJSON, err)
	}

	rest, err := repo.List(ctx, all[0].Offset, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].Key != "i2" {
		t.Fatalf("paged events = %+v", rest)
	}
}
