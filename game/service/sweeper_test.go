package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

func TestNewSweeperRejectsBadInterval(t *testing.T) {
	f := setupTestService(t)
	if _, err := service.NewSweeper(f.svc, service.WithSweepInterval(0)); err == nil {
		t.Error("Expected error for zero interval")
	}
}

func TestSweepExpiresSessions(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	view, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.clock.Advance(time.Minute)

	sw, err := service.NewSweeper(f.svc, service.WithSweepInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	sw.Start()
	defer sw.Stop()

	sw.Sweep()

	got, _ := f.svc.Get(ctx, view.ID)
	if got.Status != engine.StatusLose {
		t.Errorf("Expected LOSE after sweep, got %s", got.Status)
	}
	if f.notifier.Count() != 1 {
		t.Errorf("Expected result to be reported, got %d notifications", f.notifier.Count())
	}
}
