//go:build unit || e2e

package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func CreateTestInventory(t *testing.T, db DBLike, sku string, total int64) {
	t.Helper()

	ctx := context.Background()
	_, err := db.Exec(ctx, `
		INSERT INTO inventory (sku_code, total_quantity, available_quantity, reserved_quantity, version, updated_at)
		VALUES ($1, $2, $2, 0, 1, now())
		ON CONFLICT (sku_code) DO UPDATE
		SET total_quantity = EXCLUDED.total_quantity,
		    available_quantity = EXCLUDED.available_quantity,
		    reserved_quantity = 0`,
		sku, total)
	require.NoError(t, err)
}

type InventoryRow struct {
	Total     int64
	Available int64
	Reserved  int64
	Version   int64
}

func GetInventory(t *testing.T, db DBLike, sku string) InventoryRow {
	t.Helper()

	var row InventoryRow
	err := db.QueryRow(context.Background(),
		"SELECT total_quantity, available_quantity, reserved_quantity, version FROM inventory WHERE sku_code = $1", sku).
		Scan(&row.Total, &row.Available, &row.Reserved, &row.Version)
	require.NoError(t, err)
	return row
}

func CountReservations(t *testing.T, db DBLike, sagaID uuid.UUID, status string) int {
	t.Helper()

	var n int
	err := db.QueryRow(context.Background(),
		"SELECT count(*) FROM reservations WHERE saga_id = $1 AND status = $2", sagaID, status).Scan(&n)
	require.NoError(t, err)
	return n
}

func CountOutbox(t *testing.T, db DBLike, sagaKey, kind string) int {
	t.Helper()

	var n int
	err := db.QueryRow(context.Background(),
		"SELECT count(*) FROM outbox_messages WHERE msg_key = $1 AND kind = $2", sagaKey, kind).Scan(&n)
	require.NoError(t, err)
	return n
}

// ExpireHolds moves every HELD reservation of a saga into the past.
func ExpireHolds(t *testing.T, db DBLike, sagaID uuid.UUID) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		"UPDATE reservations SET expires_at = now() - interval '1 minute' WHERE saga_id = $1 AND status = 'HELD'", sagaID)
	require.NoError(t, err)
}

// inserts basic reference data needed by tests
func SeedReferenceData(pool *pgxpool.Pool) error {
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO inventory (sku_code, total_quantity, available_quantity, reserved_quantity, version, updated_at)
		VALUES ('SKU-REFERENCE', 100, 100, 0, 1, now())
		ON CONFLICT (sku_code) DO NOTHING;
	`)
	return err
}

var (
	buildTruncateOnce sync.Once
	truncateSQL       atomic.Value // string
)

// truncates all tables and reseeds reference data
func ResetDB(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buildTruncateOnce.Do(func() {
		rows, err := pool.Query(ctx, `
		  SELECT 'public.' || quote_ident(tablename)
		  FROM pg_tables
		  WHERE schemaname = 'public'
		    AND tablename NOT IN ('schema_migrations')`)
		if err != nil {
			truncateSQL.Store("")
			return
		}
		defer rows.Close()
		var tables []string
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				truncateSQL.Store("")
				return
			}
			tables = append(tables, t)
		}
		if rows.Err() != nil {
			truncateSQL.Store("")
			return
		}
		if len(tables) == 0 {
			truncateSQL.Store("SELECT 1")
			return
		}
		truncateSQL.Store("TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE;")
	})
	sqlAny := truncateSQL.Load()
	if sqlAny == nil || sqlAny.(string) == "" {
		return fmt.Errorf("failed to build TRUNCATE SQL")
	}
	if _, err := pool.Exec(ctx, sqlAny.(string)); err != nil {
		return err
	}

	return SeedReferenceData(pool)
}
