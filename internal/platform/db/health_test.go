package db

import (
	"context"
	"errors"
	"testing"
)

func TestPoolStats_UnhealthyState(t *testing.T) {
	stats := &PoolStats{MaxConns: 20, AcquireDuration: "0s"}
	if stats.Healthy {
		t.Error("expected Healthy to be false when TotalConns is 0")
	}
}

func TestRunChecks_AllHealthy(t *testing.T) {
	checks := []Check{
		{Name: "redis", Ping: func(context.Context) error { return nil }},
		{Name: "amqp", Ping: func(context.Context) error { return nil }},
	}
	results, ok := RunChecks(context.Background(), checks)
	if !ok {
		t.Error("expected healthy")
	}
	if results["redis"] != "ok" || results["amqp"] != "ok" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestRunChecks_OneFailing(t *testing.T) {
	checks := []Check{
		{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
		{Name: "amqp", Ping: func(context.Context) error { return nil }},
	}
	results, ok := RunChecks(context.Background(), checks)
	if ok {
		t.Error("expected unhealthy")
	}
	if results["redis"] != "connection refused" {
		t.Errorf("expected redis error, got %q", results["redis"])
	}
	if results["amqp"] != "ok" {
		t.Errorf("expected amqp ok, got %q", results["amqp"])
	}
}

func TestRunChecks_Empty(t *testing.T) {
	results, ok := RunChecks(context.Background(), nil)
	if !ok || len(results) != 0 {
		t.Errorf("expected healthy with no results, got %v %v", results, ok)
	}
}
