package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "save snapshot", Err: base}
	if !strings.Contains(query.Error(), "save snapshot") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 1, Err: base}
	if !strings.Contains(migration.Error(), "migration 1") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestServerErrors(t *testing.T) {
	base := errors.New("bind")

	start := &ErrServerStart{Addr: ":10000", Err: base}
	if !strings.Contains(start.Error(), ":10000") {
		t.Fatalf("expected addr in message: %s", start.Error())
	}
	if !errors.Is(start, base) {
		t.Fatalf("expected unwrap to base error")
	}

	shutdown := &ErrServerShutdown{Err: base}
	if !errors.Is(shutdown, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestUpstreamErrors(t *testing.T) {
	base := errors.New("connection reset")

	tok := &ErrTokenUnavailable{StatusCode: 401, Err: base}
	if !strings.Contains(tok.Error(), "status 401") {
		t.Fatalf("unexpected token message: %s", tok.Error())
	}
	if !errors.Is(tok, base) {
		t.Fatalf("expected unwrap to base error")
	}
	if strings.Contains((&ErrTokenUnavailable{Err: base}).Error(), "status") {
		t.Fatalf("status should be omitted when zero")
	}

	status := &ErrUpstreamStatus{Resource: "/r/pennystocks", StatusCode: 404}
	if !strings.Contains(status.Error(), "404") || !strings.Contains(status.Error(), "/r/pennystocks") {
		t.Fatalf("unexpected status message: %s", status.Error())
	}

	var target *ErrUpstreamStatus
	wrapped := errors.Join(errors.New("outer"), status)
	if !errors.As(wrapped, &target) || target.StatusCode != 404 {
		t.Fatalf("expected errors.As to find upstream status")
	}

	invalid := &ErrInvalidQuery{Query: "TOOLONGQ", Reason: "longer than 6 characters"}
	if !strings.Contains(invalid.Error(), "TOOLONGQ") {
		t.Fatalf("unexpected invalid query message: %s", invalid.Error())
	}
}
