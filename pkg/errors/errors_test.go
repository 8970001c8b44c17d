package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeNetwork, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeBusinessRejection, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeStorageCorruption, status: http.StatusInternalServerError},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	if got := MetadataFor(Code("SOMETHING")); got.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", got.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeNetwork, cause, "submit sale")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if !err.Retryable() {
		t.Fatal("network errors should be retryable")
	}
}

func TestIsCodeFindsWrappedTypedError(t *testing.T) {
	inner := New(CodeBusinessRejection, "insufficient stock")
	outer := fmt.Errorf("checkout: %w", inner)

	if !IsCode(outer, CodeBusinessRejection) {
		t.Fatal("expected business rejection to be detected through fmt wrap")
	}
	if IsCode(outer, CodeNetwork) {
		t.Fatal("did not expect network code")
	}
	if IsCode(stdErrors.New("plain"), CodeNetwork) {
		t.Fatal("plain errors carry no code")
	}
}

func TestDumpIncludesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "offline_snapshots_pkey", TableName: "offline_snapshots"}
	err := Wrap(CodeInternal, pgErr, "save snapshot")

	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGTable != "offline_snapshots" {
		t.Fatalf("unexpected pg fields %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", dump.Chain)
	}
	if _, ok := dump.Fields()["pg_code"]; !ok {
		t.Fatal("expected pg_code in fields")
	}
}
