package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestConstructorsSetCodeAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("section", "section-9"), ErrCodeNotFound, http.StatusNotFound},
		{"bad request", BadRequest("nope"), ErrCodeBadRequest, http.StatusBadRequest},
		{"validation", Validation("title", "must not be empty"), ErrCodeValidationError, http.StatusBadRequest},
		{"auth", Auth("Invalid username or password."), ErrCodeAuthError, http.StatusUnauthorized},
		{"persistence", Persistence("write failed", stderrors.New("disk")), ErrCodePersistence, http.StatusInternalServerError},
		{"bounds", Bounds("source index out of range"), ErrCodeBounds, http.StatusBadRequest},
		{"conflict", Conflict("board not loaded"), ErrCodeConflict, http.StatusConflict},
		{"superseded", Superseded("addTask"), ErrCodeSuperseded, http.StatusConflict},
		{"internal", InternalError("boom", nil), ErrCodeInternalError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if GetHTTPStatus(tc.err) != tc.status {
				t.Errorf("GetHTTPStatus mismatch for %s", tc.code)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFound("task", "task-1")) {
		t.Error("IsNotFound should match")
	}
	if !IsBounds(Bounds("x")) {
		t.Error("IsBounds should match")
	}
	if !IsSuperseded(Superseded("moveTask")) {
		t.Error("IsSuperseded should match")
	}
	if IsAuth(Bounds("x")) {
		t.Error("predicates must not cross codes")
	}
	if IsNotFound(stderrors.New("plain")) {
		t.Error("plain errors carry no code")
	}
	if IsNotFound(nil) {
		t.Error("nil is not an error")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := Bounds("source index out of range")
	wrapped := Wrap(inner, "move rejected")

	if wrapped.Code != ErrCodeBounds {
		t.Errorf("wrap should preserve the code, got %s", wrapped.Code)
	}
	if wrapped.HTTPStatus != http.StatusBadRequest {
		t.Errorf("wrap should preserve the status, got %d", wrapped.HTTPStatus)
	}
	if !IsBounds(wrapped) {
		t.Error("predicate should see through the wrap")
	}
	if !stderrors.Is(wrapped, inner) {
		t.Error("wrapped error should unwrap to the original")
	}

	plain := Wrap(stderrors.New("disk full"), "save failed")
	if plain.Code != ErrCodeInternalError {
		t.Errorf("wrapping a plain error should default to internal, got %s", plain.Code)
	}

	if Wrap(nil, "nothing") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestErrorString(t *testing.T) {
	err := Persistence("write failed", stderrors.New("disk"))
	want := "PERSISTENCE_ERROR: write failed: disk"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	bare := Conflict("board not loaded")
	if bare.Error() != "CONFLICT: board not loaded" {
		t.Errorf("unexpected error string %q", bare.Error())
	}
}

func TestGetHTTPStatusDefaultsTo500(t *testing.T) {
	if GetHTTPStatus(stderrors.New("plain")) != http.StatusInternalServerError {
		t.Error("plain errors should map to 500")
	}
}
