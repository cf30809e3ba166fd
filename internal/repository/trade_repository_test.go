package repository

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"moexbot/internal/models"
)

// ============================================================
// TradeRepository Tests
// ============================================================

func newTradeMock(t *testing.T) (*TradeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTradeRepository(db), mock
}

func statsColumns() []string {
	return []string{"count", "wins", "losses", "total_pnl", "avg_pnl", "best", "worst", "stop_losses"}
}

func TestNewTradeRepository(t *testing.T) {
	repo, _ := newTradeMock(t)
	if repo == nil {
		t.Fatal("NewTradeRepository returned nil")
	}
	if repo.db == nil {
		t.Error("db not set")
	}
}

func TestTradeRepositoryCreate(t *testing.T) {
	entry := time.Now().Add(-2 * time.Hour)
	exit := time.Now()

	cases := map[string]struct {
		trade   *models.Trade
		arrange func(mock sqlmock.Sqlmock)
		wantErr bool
	}{
		"success": {
			trade: &models.Trade{
				StrategyID:  "sma_sber",
				Ticker:      "SBER",
				Quantity:    100,
				EntryPrice:  280.0,
				ExitPrice:   285.5,
				Pnl:         550.0,
				EntryTime:   entry,
				ExitTime:    exit,
				WasStopLoss: false,
			},
			arrange: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO trades`).
					WithArgs("sma_sber", "SBER", 100, 280.0, 285.5, 550.0, entry, exit, false).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		"short trade closed by stop": {
			trade: &models.Trade{
				StrategyID:  "pair_sber",
				Ticker:      "SBERP",
				Quantity:    -70,
				EntryPrice:  262.0,
				ExitPrice:   266.5,
				Pnl:         -315.0,
				EntryTime:   entry,
				ExitTime:    exit,
				WasStopLoss: true,
			},
			arrange: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO trades`).
					WithArgs("pair_sber", "SBERP", -70, 262.0, 266.5, -315.0, entry, exit, true).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
			},
		},
		"database error": {
			trade: &models.Trade{
				StrategyID: "sma_sber",
				Ticker:     "SBER",
				EntryTime:  entry,
				ExitTime:   exit,
			},
			arrange: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO trades`).
					WithArgs("sma_sber", "SBER", 0, float64(0), float64(0), float64(0), entry, exit, false).
					WillReturnError(errors.New("database error"))
			},
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			repo, mock := newTradeMock(t)
			tc.arrange(mock)

			err := repo.Create(tc.trade)
			expectationsMet(t, mock)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Create() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error: %v", err)
			}
			if tc.trade.ID == 0 {
				t.Error("Create() must stamp ID")
			}
		})
	}
}

func TestTradeRepositoryGetRecent(t *testing.T) {
	repo, mock := newTradeMock(t)
	now := time.Now()
	rows := sqlmock.NewRows(strings.Split(tradeColumns, ", ")).
		AddRow(2, "rsi_gazp", "GAZP", 50, 128.0, 131.0, 150.0, now.Add(-time.Hour), now, false).
		AddRow(1, "sma_sber", "SBER", 100, 280.0, 285.5, 550.0, now.Add(-3*time.Hour), now.Add(-2*time.Hour), false)
	mock.ExpectQuery(`SELECT .+ FROM trades ORDER BY exit_time DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	result, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result))
	}
	if result[0].Ticker != "GAZP" {
		t.Errorf("expected Ticker=GAZP, got %s", result[0].Ticker)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryGetByStrategy(t *testing.T) {
	repo, mock := newTradeMock(t)
	now := time.Now()
	rows := sqlmock.NewRows(strings.Split(tradeColumns, ", ")).
		AddRow(1, "sma_sber", "SBER", 100, 280.0, 285.5, 550.0, now.Add(-time.Hour), now, false)
	mock.ExpectQuery(`SELECT .+ FROM trades WHERE strategy_id = \$1 ORDER BY exit_time DESC LIMIT \$2`).
		WithArgs("sma_sber", 20).
		WillReturnRows(rows)

	result, err := repo.GetByStrategy("sma_sber", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 trade, got %d", len(result))
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryGetByTicker(t *testing.T) {
	repo, mock := newTradeMock(t)
	now := time.Now()
	rows := sqlmock.NewRows(strings.Split(tradeColumns, ", ")).
		AddRow(1, "sma_sber", "SBER", 100, 280.0, 285.5, 550.0, now.Add(-time.Hour), now, false)
	mock.ExpectQuery(`SELECT .+ FROM trades WHERE ticker = \$1 ORDER BY exit_time DESC LIMIT \$2`).
		WithArgs("SBER", 20).
		WillReturnRows(rows)

	result, err := repo.GetByTicker("SBER", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result))
	}
	if result[0].Ticker != "SBER" {
		t.Errorf("expected Ticker=SBER, got %s", result[0].Ticker)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryGetStats(t *testing.T) {
	repo, mock := newTradeMock(t)
	rows := sqlmock.NewRows(statsColumns()).
		AddRow(10, 6, 4, 1250.0, 125.0, 800.0, -300.0, 2)
	mock.ExpectQuery(`SELECT COUNT\(\*\), .+ FROM trades`).
		WillReturnRows(rows)

	stats, err := repo.GetStats(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalTrades != 10 || stats.WinningTrades != 6 || stats.LosingTrades != 4 {
		t.Errorf("counts did not round-trip: %+v", stats)
	}
	if math.Abs(stats.WinRate-60.0) > 1e-9 {
		t.Errorf("expected WinRate=60, got %f", stats.WinRate)
	}
	if stats.TotalPnl != 1250.0 {
		t.Errorf("expected TotalPnl=1250, got %f", stats.TotalPnl)
	}
	if stats.BestTrade != 800.0 || stats.WorstTrade != -300.0 {
		t.Errorf("extremes did not round-trip: %+v", stats)
	}
	if stats.StopLossCount != 2 {
		t.Errorf("expected StopLossCount=2, got %d", stats.StopLossCount)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryGetStatsSince(t *testing.T) {
	repo, mock := newTradeMock(t)
	since := time.Now().AddDate(0, 0, -7)
	rows := sqlmock.NewRows(statsColumns()).
		AddRow(3, 2, 1, 400.0, 133.33, 500.0, -100.0, 0)
	mock.ExpectQuery(`SELECT COUNT\(\*\), .+ FROM trades WHERE exit_time >= \$1`).
		WithArgs(since).
		WillReturnRows(rows)

	stats, err := repo.GetStats(since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalTrades != 3 {
		t.Errorf("expected TotalTrades=3, got %d", stats.TotalTrades)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryGetStatsEmpty(t *testing.T) {
	repo, mock := newTradeMock(t)
	rows := sqlmock.NewRows(statsColumns()).
		AddRow(0, 0, 0, 0.0, 0.0, 0.0, 0.0, 0)
	mock.ExpectQuery(`SELECT COUNT\(\*\), .+ FROM trades`).
		WillReturnRows(rows)

	stats, err := repo.GetStats(time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalTrades != 0 {
		t.Errorf("expected TotalTrades=0, got %d", stats.TotalTrades)
	}
	if stats.WinRate != 0 {
		t.Errorf("expected WinRate=0 for empty stats, got %f", stats.WinRate)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryTopTickers(t *testing.T) {
	repo, mock := newTradeMock(t)
	rows := sqlmock.NewRows([]string{"ticker", "trades", "total_pnl", "wins"}).
		AddRow("SBER", 4, 900.0, 3).
		AddRow("GAZP", 2, 350.0, 1)
	mock.ExpectQuery(`SELECT ticker, COUNT\(\*\), .+ FROM trades GROUP BY ticker ORDER BY SUM\(pnl\) DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(rows)

	result, err := repo.TopTickers(time.Time{}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(result))
	}
	if result[0].Ticker != "SBER" {
		t.Errorf("expected first ticker SBER, got %s", result[0].Ticker)
	}
	if math.Abs(result[0].WinRate-75.0) > 1e-9 {
		t.Errorf("expected WinRate=75, got %f", result[0].WinRate)
	}
	if math.Abs(result[1].WinRate-50.0) > 1e-9 {
		t.Errorf("expected WinRate=50, got %f", result[1].WinRate)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryTopTickersSince(t *testing.T) {
	repo, mock := newTradeMock(t)
	since := time.Now().AddDate(0, 0, -30)
	rows := sqlmock.NewRows([]string{"ticker", "trades", "total_pnl", "wins"}).
		AddRow("LKOH", 1, 420.0, 1)
	mock.ExpectQuery(`SELECT ticker, COUNT\(\*\), .+ FROM trades WHERE exit_time >= \$1 GROUP BY ticker ORDER BY SUM\(pnl\) DESC LIMIT \$2`).
		WithArgs(since, 5).
		WillReturnRows(rows)

	result, err := repo.TopTickers(since, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 ticker, got %d", len(result))
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryDeleteOlderThan(t *testing.T) {
	repo, mock := newTradeMock(t)
	threshold := time.Now().AddDate(0, 0, -90)
	mock.ExpectExec(`DELETE FROM trades WHERE exit_time < \$1`).
		WithArgs(threshold).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteOlderThan(threshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 7 {
		t.Errorf("expected 7 deleted, got %d", deleted)
	}
	expectationsMet(t, mock)
}

func TestTradeRepositoryCount(t *testing.T) {
	repo, mock := newTradeMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM trades`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("expected count=42, got %d", count)
	}
	expectationsMet(t, mock)
}
