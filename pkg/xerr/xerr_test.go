package xerr_test

import (
	"dstaping/pkg/xerr"
	"testing"

	"github.com/pkg/errors"
)

func TestKindAndCode(t *testing.T) {
	base := errors.New("connection refused")
	err := errors.Wrap(xerr.NewRecoverable(xerr.Unreachable, base), "secondary")

	if xerr.IsFatal(err) {
		t.Fatal("recoverable error reported as fatal")
	}
	if xerr.CodeOf(err) != xerr.Unreachable {
		t.Fatalf("code = %v", xerr.CodeOf(err))
	}
	if !errors.Is(err, xerr.New(xerr.Fatal, xerr.Unreachable, nil)) {
		t.Fatal("errors.Is should match on code")
	}
	if !errors.Is(err, base) {
		t.Fatal("cause lost")
	}

	fatal := xerr.Escalate(err)
	if !xerr.IsFatal(fatal) || xerr.CodeOf(fatal) != xerr.Unreachable {
		t.Fatalf("escalate = %v", fatal)
	}
	if xerr.Escalate(nil) != nil {
		t.Fatal("escalate(nil) must be nil")
	}
}

func TestPlainErrors(t *testing.T) {
	err := errors.New("plain")
	if xerr.IsFatal(err) || xerr.CodeOf(err) != xerr.Unknown {
		t.Fatal("plain error classified")
	}
	if !xerr.IsFatal(xerr.Escalate(err)) {
		t.Fatal("escalated plain error must be fatal")
	}
}
