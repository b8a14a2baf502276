package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
)

func setupHandler(t *testing.T) (*Handler, *database.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "pos.db"),
		Profile: database.ProfileLedger,
		Name:    "pos",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repo := ledger.NewRepository(db.Conn(), zerolog.Nop())
	return NewHandler(repo, zerolog.Nop()), db
}

func insertAdjustments(t *testing.T, db *database.DB, drawerID string, adjustments []*ledger.Adjustment) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO drawers (id, business_date, status, opened_by, opened_at)
		VALUES (?, '2026-08-31', 'CLOSED', 'maria', 1756600000)`,
		drawerID,
	)
	require.NoError(t, err)

	repo := ledger.NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		return repo.InsertBatchTx(tx, adjustments)
	}))
}

func TestHandleListByDrawer(t *testing.T) {
	h, db := setupHandler(t)
	insertAdjustments(t, db, "drawer-1", []*ledger.Adjustment{
		{
			DrawerID:     "drawer-1",
			CountID:      "count-1",
			Instrument:   domain.LocalCash,
			Direction:    domain.KindIncome,
			Amount:       decimal.RequireFromString("5.00"),
			AuthorizedBy: "admin",
		},
		{
			DrawerID:     "drawer-1",
			CountID:      "count-1",
			Instrument:   domain.ForeignCash,
			Direction:    domain.KindExpense,
			Amount:       decimal.RequireFromString("2.50"),
			AuthorizedBy: "admin",
		},
	})

	rec := httptest.NewRecorder()
	h.HandleListByDrawer(rec, httptest.NewRequest("GET", "/ajustes/drawer-1", nil), "drawer-1")
	require.Equal(t, 200, rec.Code)

	var resp struct {
		DrawerID    string `json:"drawer_id"`
		Adjustments []struct {
			Instrument   string `json:"instrument"`
			Direction    string `json:"direction"`
			Amount       string `json:"amount"`
			AuthorizedBy string `json:"authorized_by"`
		} `json:"adjustments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "drawer-1", resp.DrawerID)
	require.Len(t, resp.Adjustments, 2)
	assert.Equal(t, "LOCAL_CASH", resp.Adjustments[0].Instrument)
	assert.Equal(t, "INCOME", resp.Adjustments[0].Direction)
	assert.Equal(t, "5.00", resp.Adjustments[0].Amount)
	assert.Equal(t, "FOREIGN_CASH", resp.Adjustments[1].Instrument)
	assert.Equal(t, "2.50", resp.Adjustments[1].Amount)
}

func TestHandleListByDrawerEmpty(t *testing.T) {
	h, _ := setupHandler(t)

	rec := httptest.NewRecorder()
	h.HandleListByDrawer(rec, httptest.NewRequest("GET", "/ajustes/nope", nil), "nope")
	require.Equal(t, 200, rec.Code)

	var resp struct {
		Adjustments []json.RawMessage `json:"adjustments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Adjustments)
}

func TestHandleDrawerSummaryNetsDirections(t *testing.T) {
	h, db := setupHandler(t)
	insertAdjustments(t, db, "drawer-2", []*ledger.Adjustment{
		{
			DrawerID:     "drawer-2",
			CountID:      "count-1",
			Instrument:   domain.LocalCash,
			Direction:    domain.KindIncome,
			Amount:       decimal.RequireFromString("10.00"),
			AuthorizedBy: "admin",
		},
		{
			DrawerID:     "drawer-2",
			CountID:      "count-2",
			Instrument:   domain.LocalCash,
			Direction:    domain.KindExpense,
			Amount:       decimal.RequireFromString("4.00"),
			AuthorizedBy: "admin",
		},
		{
			DrawerID:     "drawer-2",
			CountID:      "count-2",
			Instrument:   domain.MobilePayment,
			Direction:    domain.KindExpense,
			Amount:       decimal.RequireFromString("1.25"),
			AuthorizedBy: "admin",
		},
	})

	rec := httptest.NewRecorder()
	h.HandleDrawerSummary(rec, httptest.NewRequest("GET", "/ajustes/drawer-2/resumen", nil), "drawer-2")
	require.Equal(t, 200, rec.Code)

	var resp struct {
		Count int               `json:"count"`
		Net   map[string]string `json:"net"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "6.00", resp.Net["LOCAL_CASH"])
	assert.Equal(t, "0.00", resp.Net["FOREIGN_CASH"])
	assert.Equal(t, "-1.25", resp.Net["MOBILE_PAYMENT"])
}
