package engine

import (
	"fmt"
	"slices"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

type ResourceKind int

const (
	InstructorResource ResourceKind = iota
	ClassroomResource
	StudentResource
	resourceKinds
)

func (kind ResourceKind) String() string {
	switch kind {
	case InstructorResource:
		return "instructor"
	case ClassroomResource:
		return "classroom"
	case StudentResource:
		return "student"
	}
	return fmt.Sprintf("resource(%d)", int(kind))
}

// ConstraintIndex keeps, for every instructor, classroom and student, which section occupies each grid slot.
// It belongs to a single generation run and is not safe for concurrent use.
type ConstraintIndex struct {
	indexer   slotIndexer
	slots     uint64
	ids       [resourceKinds][]string
	handles   [resourceKinds]map[string]int
	occupants [resourceKinds][][]int32 // Section index + 1 per resource and slot; 0 means free
}

func NewConstraintIndex(input model.ModelInput) *ConstraintIndex {
	students := lo.Uniq(lo.FlatMap(input.Sections, func(section model.Section, _ int) []string { return section.EnrolledStudentIds }))
	slices.Sort(students)

	index := &ConstraintIndex{
		indexer: newSlotIndexer(input.Grid.TotalPeriods(), input.Grid.TotalDays()),
		slots:   input.Grid.TotalSlots(),
	}
	index.ids[InstructorResource] = lo.Map(input.Instructors, func(instructor model.Instructor, _ int) string { return instructor.Id })
	index.ids[ClassroomResource] = lo.Map(input.Classrooms, func(classroom model.Classroom, _ int) string { return classroom.Id })
	index.ids[StudentResource] = students

	for kind := range resourceKinds {
		index.handles[kind] = make(map[string]int, len(index.ids[kind]))
		index.occupants[kind] = make([][]int32, len(index.ids[kind]))
		for handle, id := range index.ids[kind] {
			index.handles[kind][id] = handle
			index.occupants[kind][handle] = make([]int32, index.slots)
		}
	}
	return index
}

// Handle returns the dense handle of a resource id
func (index *ConstraintIndex) Handle(kind ResourceKind, id string) (int, bool) {
	handle, ok := index.handles[kind][id]
	return handle, ok
}

// Resource returns the id behind a handle
func (index *ConstraintIndex) Resource(kind ResourceKind, handle int) string {
	return index.ids[kind][handle]
}

func (index *ConstraintIndex) Slot(day, period uint64) uint64 {
	return index.indexer.Index(period, day)
}

// IsFree reports whether the resource has no reservation at the slot; unknown resources are always free
func (index *ConstraintIndex) IsFree(kind ResourceKind, id string, day, period uint64) bool {
	_, busy := index.Occupant(kind, id, day, period)
	return !busy
}

// Occupant returns the index of the section holding the resource at the slot
func (index *ConstraintIndex) Occupant(kind ResourceKind, id string, day, period uint64) (section int, busy bool) {
	handle, ok := index.handles[kind][id]
	if !ok {
		return 0, false
	}
	return index.occupant(kind, handle, index.Slot(day, period))
}

func (index *ConstraintIndex) Reserve(kind ResourceKind, id string, day, period uint64, section int) error {
	handle, ok := index.handles[kind][id]
	if !ok {
		return fmt.Errorf("unknown %v %q", kind, id)
	}
	slot := index.Slot(day, period)
	if occupant, busy := index.occupant(kind, handle, slot); busy {
		return fmt.Errorf("%v %q is already reserved by section %d at slot %d", kind, id, occupant, slot)
	}
	index.reserve(kind, handle, slot, section)
	return nil
}

func (index *ConstraintIndex) Release(kind ResourceKind, id string, day, period uint64) {
	if handle, ok := index.handles[kind][id]; ok {
		index.release(kind, handle, index.Slot(day, period))
	}
}

//** Handle based accessors used on the search path

func (index *ConstraintIndex) occupant(kind ResourceKind, handle int, slot uint64) (int, bool) {
	occupant := index.occupants[kind][handle][slot]
	return int(occupant) - 1, occupant != 0
}

func (index *ConstraintIndex) free(kind ResourceKind, handle int, slot uint64) bool {
	return index.occupants[kind][handle][slot] == 0
}

func (index *ConstraintIndex) reserve(kind ResourceKind, handle int, slot uint64, section int) {
	index.occupants[kind][handle][slot] = int32(section) + 1
}

func (index *ConstraintIndex) release(kind ResourceKind, handle int, slot uint64) {
	index.occupants[kind][handle][slot] = 0
}
