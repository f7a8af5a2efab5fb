package domain

import (
	"errors"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

// Validate reports problems that would keep a Task from producing a
// runnable Job. The CRD schema only checks types.
func (s TaskSpec) Validate() error {
	var errs []error
	if s.Image == "" {
		errs = append(errs, errors.New("spec.image is required"))
	} else if _, err := name.ParseReference(s.Image); err != nil {
		errs = append(errs, fmt.Errorf("spec.image %q: %w", s.Image, err))
	}
	if s.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("spec.timeout must be positive, got %d", s.TimeoutSeconds))
	}
	seen := make(map[string]struct{}, len(s.Env))
	for i, e := range s.Env {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("spec.env[%d].name is required", i))
			continue
		}
		if _, dup := seen[e.Name]; dup {
			errs = append(errs, fmt.Errorf("spec.env[%d]: duplicate name %s", i, e.Name))
		}
		seen[e.Name] = struct{}{}
	}
	if len(errs) == 0 {
		return nil
	}
	return &Error{Kind: KindInvalid, Msg: "invalid task spec", Err: errors.Join(errs...)}
}
