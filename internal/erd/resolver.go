// Package erd resolves per-label, per-task spectral peak tables encoding
// event-related desynchronization for lateralized motor-imagery tasks.
package erd

import (
	"errors"
	"fmt"
	"sort"

	"neurosim/internal/model"
)

// referencePowerDB is the resting alpha level assigned to a motor label that
// is not desynchronizing: the hemisphere ipsilateral to the imagined hand,
// and both hemispheres at rest.
const referencePowerDB = 0.4

var (
	ErrReduction    = errors.New("reduction must be in (0, 1)")
	ErrMissingLabel = errors.New("label missing from peak table")
	ErrUnknownTask  = errors.New("unknown task")
)

// Entry is one resolved (label, task) cell. Desynchronized marks the cell
// whose power was reduced by the laterality rule; failure injection uses it
// to decide which labels need an alternate, non-modulated waveform.
type Entry struct {
	Peak           model.SpectralPeak
	Desynchronized bool

	// RestoredDB is the relative power the cell would have held had the
	// desynchronization not occurred. Only meaningful when Desynchronized.
	RestoredDB float64
}

// RestoredPeak returns the cell's peak with the desynchronization undone.
func (e Entry) RestoredPeak() model.SpectralPeak {
	peak := e.Peak
	if e.Desynchronized {
		peak.RelPowerDB = e.RestoredDB
	}
	return peak
}

// Table is an immutable resolved peak table keyed by (label, task). Every
// cell holds its own copy of the peak parameters, so mutating one task's view
// can never leak into another.
type Table struct {
	entries map[model.LabelTask]Entry
	labels  []string
}

// Get returns the resolved entry for a (label, task) cell.
func (t *Table) Get(label string, task model.Task) (Entry, bool) {
	e, ok := t.entries[model.LabelTask{Label: label, Task: task}]
	return e, ok
}

// Labels returns the table's label names in sorted order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// motorRole ties a task to the precentral labels it modulates. Resolving the
// roles once here keeps anatomical string matching out of the per-task loop.
type motorRole struct {
	contralateral string
	ipsilateral   string
}

// Resolver computes task-specific peak tables from a per-label base table.
type Resolver struct {
	reduction float64
	roles     map[model.Task]motorRole
}

// NewResolver validates the desynchronization fraction and fixes the
// hemisphere roles for the supported motor-imagery tasks. Imagining movement
// of one hand desynchronizes the opposite (contralateral) motor cortex.
func NewResolver(reduction float64) (*Resolver, error) {
	if reduction <= 0 || reduction >= 1 {
		return nil, fmt.Errorf("%w: %g", ErrReduction, reduction)
	}
	return &Resolver{
		reduction: reduction,
		roles: map[model.Task]motorRole{
			model.TaskMILeft:  {contralateral: "G_precentral-rh", ipsilateral: "G_precentral-lh"},
			model.TaskMIRight: {contralateral: "G_precentral-lh", ipsilateral: "G_precentral-rh"},
		},
	}, nil
}

// Reduction returns the configured desynchronization fraction.
func (r *Resolver) Reduction() float64 { return r.reduction }

// Resolve builds the per-task table. Every (label, task) cell starts from the
// label's base parameters; precentral cells of motor-imagery tasks are then
// overwritten by the laterality rule, and rest pins both precentral labels at
// the reference level.
func (r *Resolver) Resolve(tasks []model.Task, base map[string]model.SpectralPeak) (*Table, error) {
	t := &Table{entries: make(map[model.LabelTask]Entry, len(base)*len(tasks))}
	for label := range base {
		t.labels = append(t.labels, label)
	}
	sort.Strings(t.labels)

	for _, label := range t.labels {
		for _, task := range tasks {
			t.entries[model.LabelTask{Label: label, Task: task}] = Entry{Peak: base[label]}
		}
	}

	for _, task := range tasks {
		switch task {
		case model.TaskMILeft, model.TaskMIRight:
			role := r.roles[task]
			contra, ok := t.entries[model.LabelTask{Label: role.contralateral, Task: task}]
			if !ok {
				return nil, fmt.Errorf("%w: %s (task %s)", ErrMissingLabel, role.contralateral, task)
			}
			ipsi, ok := t.entries[model.LabelTask{Label: role.ipsilateral, Task: task}]
			if !ok {
				return nil, fmt.Errorf("%w: %s (task %s)", ErrMissingLabel, role.ipsilateral, task)
			}

			ipsi.Peak.RelPowerDB = referencePowerDB
			ipsi.Desynchronized = false
			t.entries[model.LabelTask{Label: role.ipsilateral, Task: task}] = ipsi

			contra.Peak.RelPowerDB = referencePowerDB * (1 - r.reduction)
			contra.Desynchronized = true
			contra.RestoredDB = referencePowerDB
			t.entries[model.LabelTask{Label: role.contralateral, Task: task}] = contra
		case model.TaskRest:
			for _, label := range []string{"G_precentral-lh", "G_precentral-rh"} {
				e, ok := t.entries[model.LabelTask{Label: label, Task: task}]
				if !ok {
					return nil, fmt.Errorf("%w: %s (task %s)", ErrMissingLabel, label, task)
				}
				e.Peak.RelPowerDB = referencePowerDB
				t.entries[model.LabelTask{Label: label, Task: task}] = e
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
		}
	}
	return t, nil
}
