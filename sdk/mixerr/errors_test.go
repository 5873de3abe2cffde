package mixerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResultCodeTableMatchesCount(t *testing.T) {
	if len(resultCodeNames) != ResultCodeCount {
		t.Fatalf("resultCodeNames has %d entries, ResultCodeCount = %d", len(resultCodeNames), ResultCodeCount)
	}
	for i := 0; i < ResultCodeCount; i++ {
		if _, ok := resultCodeNames[ResultCode(i)]; !ok {
			t.Fatalf("missing name for code %d", i)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		code       int
		wantKind   Kind
		wantCode   ResultCode
		wantStatus int
	}{
		{"ok", 0, KindProtocol, Ok, 0},
		{"invalid operation", 11, KindProtocol, InvalidOperation, 0},
		{"last enumerated", ResultCodeCount - 1, KindProtocol, SdkInternalError, 0},
		{"first past enumeration", ResultCodeCount, KindHTTP, 0, ResultCodeCount},
		{"conflict", 409, KindHTTP, 0, 409},
		{"negative", -1, KindHTTP, 0, -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.code)
			if got.Kind != tt.wantKind || got.Code != tt.wantCode || got.HTTPStatus != tt.wantStatus {
				t.Errorf("Classify(%d) = %+v, want kind=%v code=%v status=%d", tt.code, got, tt.wantKind, tt.wantCode, tt.wantStatus)
			}
		})
	}
}

func TestClassifyBoundaryForAllCodes(t *testing.T) {
	for c := -5; c < 700; c++ {
		got := Classify(c)
		protocol := c >= 0 && c < ResultCodeCount
		if protocol && got.Kind != KindProtocol {
			t.Fatalf("Classify(%d) kind = %v, want protocol", c, got.Kind)
		}
		if !protocol && (got.Kind != KindHTTP || got.HTTPStatus != c) {
			t.Fatalf("Classify(%d) = %+v, want HttpFailure(%d)", c, got, c)
		}
	}
}

func TestFromCode(t *testing.T) {
	if err := FromCode(0); err != nil {
		t.Fatalf("FromCode(0) = %v, want nil", err)
	}

	err := FromCode(int(InvalidState))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("FromCode(InvalidState) = %v, want ErrInvalidState", err)
	}
	if !IsProtocol(err) || IsHTTP(err) {
		t.Fatalf("FromCode(InvalidState) should be protocol-level")
	}
	if !strings.Contains(err.Error(), "InvalidState (31)") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	err = FromCode(409)
	if !IsHTTP(err) || HTTPStatusOf(err) != 409 {
		t.Fatalf("FromCode(409) = %v, want HttpFailure(409)", err)
	}
	if CodeOf(err) != HttpError {
		t.Fatalf("CodeOf(http) = %v, want HttpError", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "409") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	if Wrap(nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}

	original := HTTP(502)
	wrapped := fmt.Errorf("outer: %w", original)
	if got := Wrap(wrapped); got != wrapped {
		t.Fatalf("Wrap should pass taxonomy errors through, got %v", got)
	}

	if got := Wrap(context.Canceled); !errors.Is(got, ErrCancelled) {
		t.Fatalf("Wrap(context.Canceled) = %v, want Cancelled", got)
	}
	if got := Wrap(context.DeadlineExceeded); !errors.Is(got, ErrTimedOut) {
		t.Fatalf("Wrap(context.DeadlineExceeded) = %v, want TimedOut", got)
	}

	plain := errors.New("boom")
	got := Wrap(plain)
	if CodeOf(got) != GeneralError || !errors.Is(got, plain) {
		t.Fatalf("Wrap(plain) = %v, want Error wrapping cause", got)
	}
}

func TestSDKErrorIsProtocolCoded(t *testing.T) {
	err := SDK("a client id is required")
	if !IsProtocol(err) {
		t.Fatal("sdk errors carry a protocol code")
	}
	if CodeOf(err) != SdkInternalError {
		t.Fatalf("CodeOf = %v, want SdkInternalError", CodeOf(err))
	}
	if err.Error() != "a client id is required" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if errors.Is(err, ErrInvalidState) {
		t.Fatal("sdk error must not match InvalidState")
	}
}
