package services

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// PathSpec describes a directory that must be usable before the store starts.
type PathSpec struct {
	Name            string
	Path            string
	Required        bool
	CreateIfMissing bool
	Writable        bool
}

// PathIssue is a problem found with one path.
type PathIssue struct {
	Spec PathSpec
	Err  error
}

// PathValidator checks the configured directories.
type PathValidator struct {
	specs []PathSpec
}

// NewPathValidator creates a validator for specs.
func NewPathValidator(specs ...PathSpec) *PathValidator {
	return &PathValidator{specs: specs}
}

// DefaultPathSpecs returns the specs for the standard data layout.
// Every directory is required and created on first use.
func DefaultPathSpecs(p domain.PathSettings) []PathSpec {
	spec := func(name, path string) PathSpec {
		return PathSpec{Name: name, Path: path, Required: true, CreateIfMissing: true, Writable: true}
	}
	return []PathSpec{
		spec("data", p.DataDir),
		spec("vector_store", p.VectorStoreDir),
		spec("documents", p.DocumentsDir),
		spec("chat_history", p.ChatHistoryDir),
		spec("backups", p.BackupsDir),
		spec("prompts", p.PromptsDir),
		spec("tmp", p.TempDir),
		spec("state", p.StateDir),
	}
}

// Validate checks a single path, creating it when allowed.
func (v *PathValidator) Validate(spec PathSpec) error {
	if spec.Path == "" {
		return domain.ValidationErrorf("paths", "%s path is empty", spec.Name)
	}

	info, err := os.Stat(spec.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !spec.CreateIfMissing {
			return domain.NewError(domain.KindStorage, "paths", spec.Name,
				fmt.Errorf("%s does not exist: %w", spec.Path, err))
		}
		if mkErr := os.MkdirAll(spec.Path, 0o700); mkErr != nil {
			return Wrap("paths", spec.Name, mkErr)
		}
	case err != nil:
		return Wrap("paths", spec.Name, err)
	case !info.IsDir():
		return domain.NewError(domain.KindStorage, "paths", spec.Name,
			fmt.Errorf("%s is not a directory", spec.Path))
	}

	if spec.Writable {
		if err := probeWritable(spec.Path); err != nil {
			return Wrap("paths", spec.Name, err)
		}
	}
	return nil
}

// ValidateAll checks every path. Required failures are aggregated into one error.
// Optional failures are returned as issues without failing.
func (v *PathValidator) ValidateAll() ([]PathIssue, error) {
	var (
		issues []PathIssue
		result *multierror.Error
	)
	for _, spec := range v.specs {
		if err := v.Validate(spec); err != nil {
			issues = append(issues, PathIssue{Spec: spec, Err: err})
			if spec.Required {
				result = multierror.Append(result, fmt.Errorf("%s: %w", spec.Name, err))
			}
		}
	}
	if result == nil {
		return issues, nil
	}

	kind := domain.KindStorage
	for _, e := range result.Errors {
		if Classify(e) == domain.KindPermission {
			kind = domain.KindPermission
			break
		}
	}
	return issues, domain.NewError(kind, "paths", "validate", result.ErrorOrNil())
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}
