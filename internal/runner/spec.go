// Package runner executes independent evaluation runs concurrently and
// carries each run from dataset loading to a stored, published report.
package runner

import (
	"fmt"

	"github.com/ricesearch/covereval/internal/config"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Spec identifies one evaluation run.
type Spec struct {
	Method  experiment.Method
	Split   experiment.Split
	Profile experiment.Profile
	Size    int
}

// Name returns "method/split/profile@size".
func (s Spec) Name() string {
	return fmt.Sprintf("%s/%s/%s@%d", s.Method, s.Split, s.Profile, s.Size)
}

// Validate checks the spec.
func (s Spec) Validate() error {
	if s.Size <= 0 {
		return errors.ValidationError(fmt.Sprintf("size must be positive, got %d", s.Size))
	}
	return nil
}

// Matrix returns the cross product of the given dimensions, methods varying
// fastest.
func Matrix(methods []experiment.Method, splits []experiment.Split, profiles []experiment.Profile, sizes []int) []Spec {
	specs := make([]Spec, 0, len(methods)*len(splits)*len(profiles)*len(sizes))
	for _, split := range splits {
		for _, profile := range profiles {
			for _, size := range sizes {
				for _, m := range methods {
					specs = append(specs, Spec{Method: m, Split: split, Profile: profile, Size: size})
				}
			}
		}
	}
	return specs
}

// SpecsFromConfig builds the runs requested by the evaluation settings:
// every configured method for the configured split, profile and size.
func SpecsFromConfig(cfg config.EvalConfig) ([]Spec, error) {
	split, err := experiment.ParseSplit(cfg.Mode)
	if err != nil {
		return nil, err
	}
	profile, err := experiment.ParseProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if cfg.ExcludeDuplicates {
		profile = profile.WithoutDuplicates()
	}
	methods, err := experiment.ParseMethods(cfg.Methods)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, errors.ValidationError("at least one method is required")
	}

	specs := Matrix(methods, []experiment.Split{split}, []experiment.Profile{profile}, []int{cfg.Size})
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return specs, nil
}
