package service

import (
	"errors"
	"testing"

	"moexbot/internal/models"
)

// ============================================================
// NotificationService Tests
// ============================================================

func TestNotificationServiceCreate(t *testing.T) {
	repo := NewMockNotificationRepository()
	hub := &MockWebSocketHub{}

	svc := NewNotificationService(repo)
	svc.SetWebSocketHub(hub)

	notif := models.NewNotification(models.NotificationOpen, models.SeverityInfo, "position opened").
		WithTicker("SBER").
		WithStrategy("sma_sber")

	if err := svc.CreateNotification(notif); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notif.ID == 0 {
		t.Error("expected ID to be set")
	}
	if len(hub.notifications) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.notifications))
	}
	if hub.notifications[0].Type != models.NotificationOpen {
		t.Errorf("expected type OPEN, got %s", hub.notifications[0].Type)
	}
}

func TestNotificationServiceCreateWithoutHub(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	notif := models.NewNotification(models.NotificationPause, models.SeverityInfo, "engine paused")

	// Без hub не должно быть паники
	if err := svc.CreateNotification(notif); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotificationServiceCreateError(t *testing.T) {
	repo := NewMockNotificationRepository()
	repo.failCreate = errors.New("database error")
	hub := &MockWebSocketHub{}

	svc := NewNotificationService(repo)
	svc.SetWebSocketHub(hub)

	notif := models.NewNotification(models.NotificationError, models.SeverityError, "venue unavailable")

	if err := svc.CreateNotification(notif); err == nil {
		t.Error("expected error, got nil")
	}
	if len(hub.notifications) != 0 {
		t.Errorf("expected no broadcast on error, got %d", len(hub.notifications))
	}
}

func TestNotificationServiceGetNotifications(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	seed := []*models.Notification{
		models.NewNotification(models.NotificationOpen, models.SeverityInfo, "opened"),
		models.NewNotification(models.NotificationStopLoss, models.SeverityWarn, "stop loss"),
		models.NewNotification(models.NotificationError, models.SeverityError, "api error"),
	}
	for _, n := range seed {
		if err := repo.Create(n); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	tests := []struct {
		name      string
		types     []string
		expectLen int
	}{
		{"no filter", nil, 3},
		{"single type", []string{"SL"}, 1},
		{"multiple types", []string{"SL", "ERROR"}, 2},
		{"lowercase normalized", []string{"sl"}, 1},
		{"whitespace trimmed", []string{"  ERROR  "}, 1},
		{"invalid type ignored", []string{"BOGUS"}, 3},
		{"mixed valid and invalid", []string{"BOGUS", "OPEN"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.GetNotifications(tt.types, 10)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil {
				t.Fatal("expected non-nil slice")
			}
			if len(result) != tt.expectLen {
				t.Errorf("expected %d notifications, got %d", tt.expectLen, len(result))
			}
		})
	}
}

func TestNotificationServiceGetNotificationsLimits(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		expectLimit int
	}{
		{"default when zero", 0, 100},
		{"default when negative", -1, 100},
		{"clamped to max", 9999, 500},
		{"passed through", 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockNotificationRepository()
			svc := NewNotificationService(repo)

			if _, err := svc.GetNotifications(nil, tt.limit); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.lastLimit != tt.expectLimit {
				t.Errorf("expected limit %d, got %d", tt.expectLimit, repo.lastLimit)
			}
		})
	}
}

func TestNotificationServiceClear(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	if err := repo.Create(models.NewNotification(models.NotificationOpen, models.SeverityInfo, "opened")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := svc.ClearNotifications(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _ := svc.GetNotificationCount()
	if count != 0 {
		t.Errorf("expected 0 after clear, got %d", count)
	}
}

func TestNotificationServiceCounts(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	seed := []*models.Notification{
		models.NewNotification(models.NotificationError, models.SeverityError, "first"),
		models.NewNotification(models.NotificationError, models.SeverityError, "second"),
		models.NewNotification(models.NotificationOpen, models.SeverityInfo, "opened"),
	}
	for _, n := range seed {
		if err := repo.Create(n); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	total, err := svc.GetNotificationCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected count=3, got %d", total)
	}

	errCount, err := svc.GetNotificationCountByType("error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errCount != 2 {
		t.Errorf("expected 2 error notifications, got %d", errCount)
	}
}

func TestNotificationServiceCleanupOld(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	for i := 0; i < 5; i++ {
		if err := repo.Create(models.NewNotification(models.NotificationSignal, models.SeverityInfo, "signal")); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	deleted, err := svc.CleanupOld(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	count, _ := svc.GetNotificationCount()
	if count != 3 {
		t.Errorf("expected 3 remaining, got %d", count)
	}
}

func TestNotificationServiceCleanupOldDefault(t *testing.T) {
	repo := NewMockNotificationRepository()
	svc := NewNotificationService(repo)

	if _, err := svc.CleanupOld(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastLimit != 1000 {
		t.Errorf("expected default keep=1000, got %d", repo.lastLimit)
	}
}

func TestNotificationServiceHelpers(t *testing.T) {
	tests := []struct {
		name           string
		create         func(svc *NotificationService) error
		expectType     models.NotificationType
		expectSeverity string
		expectTicker   string
		expectStrategy string
	}{
		{
			name: "signal",
			create: func(svc *NotificationService) error {
				return svc.CreateSignalNotification("sma_sber", "SBER", "buy signal")
			},
			expectType:     models.NotificationSignal,
			expectSeverity: models.SeverityInfo,
			expectTicker:   "SBER",
			expectStrategy: "sma_sber",
		},
		{
			name: "open",
			create: func(svc *NotificationService) error {
				return svc.CreateOpenNotification("sma_sber", "SBER", "opened 10 lots")
			},
			expectType:     models.NotificationOpen,
			expectSeverity: models.SeverityInfo,
			expectTicker:   "SBER",
			expectStrategy: "sma_sber",
		},
		{
			name: "close",
			create: func(svc *NotificationService) error {
				return svc.CreateCloseNotification("sma_sber", "SBER", "closed")
			},
			expectType:     models.NotificationClose,
			expectSeverity: models.SeverityInfo,
			expectTicker:   "SBER",
			expectStrategy: "sma_sber",
		},
		{
			name: "stop loss",
			create: func(svc *NotificationService) error {
				return svc.CreateStopLossNotification("rsi_gazp", "GAZP", "stop triggered")
			},
			expectType:     models.NotificationStopLoss,
			expectSeverity: models.SeverityWarn,
			expectTicker:   "GAZP",
			expectStrategy: "rsi_gazp",
		},
		{
			name: "liquidation",
			create: func(svc *NotificationService) error {
				return svc.CreateLiquidationNotification("pair_sber", "SBERP", "session close")
			},
			expectType:     models.NotificationLiquidation,
			expectSeverity: models.SeverityInfo,
			expectTicker:   "SBERP",
			expectStrategy: "pair_sber",
		},
		{
			name: "error",
			create: func(svc *NotificationService) error {
				return svc.CreateErrorNotification("venue unavailable")
			},
			expectType:     models.NotificationError,
			expectSeverity: models.SeverityError,
		},
		{
			name: "pause",
			create: func(svc *NotificationService) error {
				return svc.CreatePauseNotification("paused by operator")
			},
			expectType:     models.NotificationPause,
			expectSeverity: models.SeverityInfo,
		},
		{
			name: "leg fail",
			create: func(svc *NotificationService) error {
				return svc.CreateLegFailNotification("pair_sber", "SBERP", "second leg rejected")
			},
			expectType:     models.NotificationLegFail,
			expectSeverity: models.SeverityError,
			expectTicker:   "SBERP",
			expectStrategy: "pair_sber",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockNotificationRepository()
			hub := &MockWebSocketHub{}

			svc := NewNotificationService(repo)
			svc.SetWebSocketHub(hub)

			if err := tt.create(svc); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(hub.notifications) != 1 {
				t.Fatalf("expected 1 broadcast, got %d", len(hub.notifications))
			}

			notif := hub.notifications[0]
			if notif.Type != tt.expectType {
				t.Errorf("expected type %s, got %s", tt.expectType, notif.Type)
			}
			if notif.Severity != tt.expectSeverity {
				t.Errorf("expected severity %s, got %s", tt.expectSeverity, notif.Severity)
			}
			if notif.Ticker != tt.expectTicker {
				t.Errorf("expected ticker %q, got %q", tt.expectTicker, notif.Ticker)
			}
			if notif.StrategyID != tt.expectStrategy {
				t.Errorf("expected strategy %q, got %q", tt.expectStrategy, notif.StrategyID)
			}
			if notif.Timestamp.IsZero() {
				t.Error("expected timestamp to be set")
			}
		})
	}
}
