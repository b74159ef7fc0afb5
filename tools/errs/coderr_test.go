package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrValidation.Wrap(), false},
		{ErrAuthorization.Wrap(), false},
		{ErrRangeTooLarge.Wrap(), false},
		{ErrTransient.Wrap(), true},
		{New("plain network fault"), true},
		{fmt.Errorf("wrapped: %w", ErrAuthorization.Wrap()), false},
	}
	for i, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("case %d (%v): IsRetryable = %v, want %v", i, tc.err, got, tc.want)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := ErrRangeTooLarge.WrapMsg("span above cap", "span", 501)
	err = fmt.Errorf("repair failed: %w", err)

	if CodeOf(err) != CodeRangeTooLarge {
		t.Fatalf("CodeOf = %d, want %d", CodeOf(err), CodeRangeTooLarge)
	}
	if !IsRangeTooLarge(err) {
		t.Fatal("IsRangeTooLarge lost through wrapping")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := ErrTransient.WrapMsg("relay down")
	if !errors.Is(err, &ErrTransient) {
		t.Fatal("wrapped transient does not match its predefined value")
	}
	if errors.Is(err, &ErrValidation) {
		t.Fatal("transient matched validation")
	}
}

func TestWrapMsgAccumulatesDetail(t *testing.T) {
	err := ErrValidation.WrapMsg("bad field", "name", "conversation_id")
	msg := err.Error()
	if msg == "" || CodeOf(err) != CodeValidation {
		t.Fatalf("err = %v", err)
	}
	ce, ok := Unwrap(err).(*CodeError)
	if !ok {
		t.Fatalf("unwrap to CodeError failed: %T", Unwrap(err))
	}
	if ce.Detail != "bad field name=conversation_id" {
		t.Fatalf("detail = %q", ce.Detail)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil) != nil || WrapMsg(nil, "x") != nil {
		t.Fatal("wrapping nil produced an error")
	}
}
