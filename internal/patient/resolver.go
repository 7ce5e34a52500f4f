// Package patient maps the loose identities found in schedule cells to
// canonical patient ids.
package patient

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Directory is the read side of the identity repository. Both lookups only
// consider non-deleted patients; ByName also requires an active status.
type Directory interface {
	PatientByExternalID(ctx context.Context, externalID string) (uuid.UUID, bool, error)
	PatientsByName(ctx context.Context, name string) ([]uuid.UUID, error)
}

// Method records how a resolution was reached.
type Method string

const (
	MethodExternalID Method = "external_id"
	MethodName       Method = "name"
	MethodAmbiguous  Method = "ambiguous"
	MethodUnmatched  Method = "unmatched"
)

// Resolution is the cached answer for one (externalID, rawName) pair.
type Resolution struct {
	PatientID *uuid.UUID
	Method    Method
}

// Matched reports whether a patient id was found.
func (r Resolution) Matched() bool {
	return r.PatientID != nil
}

// Stats summarises the resolver cache.
type Stats struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Ambiguous  int `json:"ambiguous"`
}

type cacheKey struct {
	externalID string
	rawName    string
}

// Resolver memoizes lookups for the lifetime of one sync run. It is not safe
// for concurrent use.
type Resolver struct {
	dir    Directory
	logger *logging.Logger
	cache  map[cacheKey]Resolution
}

// NewResolver returns a resolver with an empty cache.
func NewResolver(dir Directory, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{dir: dir, logger: logger, cache: make(map[cacheKey]Resolution)}
}

// Resolve finds the patient for a chart id and/or raw name. An exact external
// id match wins; otherwise the cleaned name must match exactly one patient.
// Lookup errors are returned and not cached.
func (r *Resolver) Resolve(ctx context.Context, externalID, rawName string) (Resolution, error) {
	key := cacheKey{externalID: externalID, rawName: rawName}
	if res, ok := r.cache[key]; ok {
		return res, nil
	}

	res, err := r.lookup(ctx, strings.TrimSpace(externalID), rawName)
	if err != nil {
		return Resolution{}, err
	}
	r.cache[key] = res
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, externalID, rawName string) (Resolution, error) {
	if externalID != "" {
		id, ok, err := r.dir.PatientByExternalID(ctx, externalID)
		if err != nil {
			return Resolution{}, fmt.Errorf("patient: lookup external id: %w", err)
		}
		if ok {
			return Resolution{PatientID: &id, Method: MethodExternalID}, nil
		}
	}

	name := CleanName(rawName)
	if name == "" {
		return Resolution{Method: MethodUnmatched}, nil
	}
	ids, err := r.dir.PatientsByName(ctx, name)
	if err != nil {
		return Resolution{}, fmt.Errorf("patient: search name: %w", err)
	}
	switch len(ids) {
	case 0:
		return Resolution{Method: MethodUnmatched}, nil
	case 1:
		id := ids[0]
		return Resolution{PatientID: &id, Method: MethodName}, nil
	default:
		r.logger.Debug("ambiguous patient name", "name", name, "candidates", len(ids))
		return Resolution{Method: MethodAmbiguous}, nil
	}
}

// Stats counts the distinct pairs seen so far.
func (r *Resolver) Stats() Stats {
	var s Stats
	for _, res := range r.cache {
		s.Total++
		switch {
		case res.Matched():
			s.Resolved++
		case res.Method == MethodAmbiguous:
			s.Ambiguous++
			s.Unresolved++
		default:
			s.Unresolved++
		}
	}
	return s
}

// ClearCache drops every memoized resolution.
func (r *Resolver) ClearCache() {
	r.cache = make(map[cacheKey]Resolution)
}

var numeralSuffix = regexp.MustCompile(`\s*(?:\(\d+\)|\d+)$`)

const decorations = "*★☆※#@●○◎-"

// CleanName strips leading decoration symbols and a trailing numeral suffix.
func CleanName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimLeft(name, decorations+" ")
	name = numeralSuffix.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}
