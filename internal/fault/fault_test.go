package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	errNoEdge := fmt.Errorf("%w: no active edge", ErrPrecondition)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"direct", ErrInconsistent, ErrInconsistent},
		{"wrapped sentinel", fmt.Errorf("solve: %w", errNoEdge), ErrPrecondition},
		{"joined", errors.Join(errors.New("x"), ErrCleanup), ErrCleanup},
		{"plain", errors.New("boom"), nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}
