package ruleerrors

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

func TestNewErrMissingDependencies(t *testing.T) {
	outer := NewErrMissingDependencies([]externalapi.PointID{{Round: 5, Author: externalapi.PeerID{255, 255}}})
	expectedOuterErr := "ErrMissingDependencies: missing the following points: [5 @ ffff0000 # 00000000]"
	inner := &ErrMissingDependencies{}
	if !errors.As(outer, inner) {
		t.Fatal("TestNewErrMissingDependencies: Outer should contain ErrMissingDependencies in it")
	}
	if len(inner.MissingIDs) != 1 {
		t.Fatalf("TestNewErrMissingDependencies: Expected len(inner.MissingIDs) 1, found: %d", len(inner.MissingIDs))
	}
	if inner.MissingIDs[0].Round != 5 {
		t.Fatalf("TestNewErrMissingDependencies: Expected 5. found: %d", inner.MissingIDs[0].Round)
	}

	rule := &RuleError{}
	if !errors.As(outer, rule) {
		t.Fatal("TestNewErrMissingDependencies: Outer should contain RuleError in it")
	}
	if rule.message != "ErrMissingDependencies" {
		t.Fatalf("TestNewErrMissingDependencies: Expected message = 'ErrMissingDependencies', found: '%s'", rule.message)
	}
	if outer.Error() != expectedOuterErr {
		t.Fatalf("TestNewErrMissingDependencies: Expected %s. found: %s", expectedOuterErr, outer.Error())
	}
}

func TestWrappedRuleErrorIs(t *testing.T) {
	wrapped := pkgerrors.Wrapf(ErrDigestMismatch, "point %d", 7)
	if !errors.Is(wrapped, ErrDigestMismatch) {
		t.Fatalf("a wrapped ErrDigestMismatch should match with errors.Is")
	}
	if errors.Is(wrapped, ErrBadSignature) {
		t.Fatalf("a wrapped ErrDigestMismatch should not match ErrBadSignature")
	}
}
