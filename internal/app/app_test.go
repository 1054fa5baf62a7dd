package app

import (
	"context"
	"testing"

	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/log"
)

func TestSetup_InvalidConfig(t *testing.T) {
	if _, err := Setup(context.Background(), &config.Config{}, log.NewNop()); err == nil {
		t.Fatal("expected validation error for zero config")
	}
}

func TestClose_NilResources(t *testing.T) {
	a := &App{Logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Errorf("Close on empty app: %v", err)
	}
}
