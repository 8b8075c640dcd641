package scheduler

import (
	"sync"
	"testing"
	"time"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent int
}

func (f *fakeMessenger) SendText(to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeDialer struct{}

func (fakeDialer) PlaceCall(to string) (string, error) { return "CA0001", nil }

type fakeResponder struct{}

func (fakeResponder) Reply(history []models.Message, utterance string) string { return "claro" }

func newTestManager(t *testing.T) (*campaign.Manager, *fakeMessenger) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Contact{}, &models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	messenger := &fakeMessenger{}
	cfg := campaign.DefaultConfig()
	cfg.Cooldown = 0
	manager := campaign.NewManager(db, store.New(db), messenger, fakeDialer{}, fakeResponder{}, nil, cfg)
	return manager, messenger
}

func TestSchedulerDrivesFollowUps(t *testing.T) {
	manager, messenger := newTestManager(t)
	if err := manager.Seed("Ana", "5550001"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := New(manager, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if messenger.count() > 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduler never triggered a consent resend")
}

func TestSchedulerStops(t *testing.T) {
	manager, messenger := newTestManager(t)
	if err := manager.Seed("Ana", "5550001"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := New(manager, 10*time.Millisecond)
	s.Start()
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	before := messenger.count()
	time.Sleep(100 * time.Millisecond)
	if got := messenger.count(); got != before {
		t.Errorf("scheduler still ticking after Stop: %d -> %d sends", before, got)
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	manager, _ := newTestManager(t)
	s := New(manager, 0)
	if s.interval != time.Hour {
		t.Errorf("interval = %s, want 1h", s.interval)
	}
}
