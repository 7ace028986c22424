package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
)

// DiffConfigs compares two compilations of the same host and reports, per
// resource, whether it was added, removed, changed or left alone. Either side
// may be nil, which is treated as an empty catalog.
func DiffConfigs(prev, next *Config) (*DiffResult, error) {
	result := &DiffResult{
		Resources: make([]ResourceDiff, 0),
		Timestamp: time.Now(),
	}

	prevIndex := make(map[string]*Resource)
	if prev != nil {
		for i := range prev.Resources {
			prevIndex[prev.Resources[i].ID] = &prev.Resources[i]
		}
	}

	seen := make(map[string]bool)
	if next != nil {
		for i := range next.Resources {
			after := &next.Resources[i]
			seen[after.ID] = true

			diff, err := diffResource(prevIndex[after.ID], after)
			if err != nil {
				return nil, err
			}
			result.Resources = append(result.Resources, diff)
		}
	}

	if prev != nil {
		for i := range prev.Resources {
			before := &prev.Resources[i]
			if seen[before.ID] {
				continue
			}
			result.Resources = append(result.Resources, ResourceDiff{
				ResourceID: before.ID,
				Operation:  OperationDelete,
				Before:     before,
			})
		}
	}

	for _, rd := range result.Resources {
		result.Summary.TotalResources++
		switch rd.Operation {
		case OperationCreate:
			result.Summary.ToCreate++
		case OperationUpdate:
			result.Summary.ToUpdate++
		case OperationDelete:
			result.Summary.ToDelete++
		case OperationNoop:
			result.Summary.NoChange++
		}
	}

	return result, nil
}

func diffResource(before, after *Resource) (ResourceDiff, error) {
	if before == nil {
		return ResourceDiff{ResourceID: after.ID, Operation: OperationCreate, After: after}, nil
	}

	x, err := desiredState(before)
	if err != nil {
		return ResourceDiff{}, err
	}
	y, err := desiredState(after)
	if err != nil {
		return ResourceDiff{}, err
	}

	var r changeReporter
	cmp.Equal(x, y, cmp.Reporter(&r))

	rd := ResourceDiff{
		ResourceID: after.ID,
		Operation:  OperationNoop,
		Before:     before,
		After:      after,
	}
	if len(r.changes) > 0 {
		rd.Operation = OperationUpdate
		rd.Changes = r.changes
	}
	return rd, nil
}

// desiredState decodes the parts of a resource that define its desired state
// into plain JSON values.
func desiredState(res *Resource) (interface{}, error) {
	doc := struct {
		Config       json.RawMessage `json:"config,omitempty"`
		Dependencies []Dependency    `json:"dependencies,omitempty"`
	}{Config: res.Config, Dependencies: res.Dependencies}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, NewPermanentError("failed to encode resource", err).
			WithCode(ErrCodeInternal).WithResource(res.ID)
	}

	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, NewPermanentError("failed to decode resource", err).
			WithCode(ErrCodeInternal).WithResource(res.ID)
	}
	return out, nil
}

// changeReporter collects leaf differences reported by cmp.Equal.
type changeReporter struct {
	path    cmp.Path
	changes []Change
}

func (r *changeReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *changeReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}

	vx, vy := r.path.Last().Values()
	change := Change{Path: formatPath(r.path)}
	switch {
	case !vx.IsValid():
		change.Action = ChangeActionAdd
		change.After = vy.Interface()
	case !vy.IsValid():
		change.Action = ChangeActionRemove
		change.Before = vx.Interface()
	default:
		change.Action = ChangeActionModify
		change.Before = vx.Interface()
		change.After = vy.Interface()
	}
	r.changes = append(r.changes, change)
}

func (r *changeReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

// formatPath renders map keys and slice indexes of a path, skipping the
// type assertions go-cmp records for interface values.
func formatPath(path cmp.Path) string {
	var sb strings.Builder
	for _, step := range path {
		switch s := step.(type) {
		case cmp.MapIndex:
			sb.WriteString(".")
			sb.WriteString(fmt.Sprint(s.Key().Interface()))
		case cmp.SliceIndex:
			ix, iy := s.SplitKeys()
			key := iy
			if key < 0 {
				key = ix
			}
			sb.WriteString(fmt.Sprintf("[%d]", key))
		}
	}
	if sb.Len() == 0 {
		return "."
	}
	return sb.String()
}
