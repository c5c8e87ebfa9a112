package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

type Scope struct {
	Semester     string `json:"semester" validate:"required,oneof=spring summer fall winter"`
	Year         int    `json:"year" validate:"gte=1900,lte=2999"`
	DepartmentId string `json:"departmentId,omitempty" validate:"omitempty,max=64"`
}

// NewScope normalizes and validates a generation scope
func NewScope(semester string, year int, departmentId string) (Scope, error) {
	scope := Scope{
		Semester:     strings.ToLower(strings.TrimSpace(semester)),
		Year:         year,
		DepartmentId: strings.TrimSpace(departmentId),
	}
	if err := validate.Struct(scope); err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, translate(err))
	}
	return scope, nil
}

// Key identifies the scope in locks and storage
func (scope Scope) Key() string {
	if scope.DepartmentId == "" {
		return fmt.Sprintf("%v-%d", scope.Semester, scope.Year)
	}
	return fmt.Sprintf("%v-%d-%v", scope.Semester, scope.Year, scope.DepartmentId)
}

func (scope Scope) Contains(section Section) bool {
	return (section.Semester == "" || strings.EqualFold(section.Semester, scope.Semester)) &&
		(section.Year == 0 || section.Year == scope.Year) &&
		(scope.DepartmentId == "" || section.DepartmentId == scope.DepartmentId)
}

type Section struct {
	Id                     string   `json:"id" validate:"required"`
	CourseCode             string   `json:"courseCode" validate:"required"`
	SectionNumber          string   `json:"sectionNumber" validate:"required"`
	DepartmentId           string   `json:"departmentId,omitempty"`
	Semester               string   `json:"semester,omitempty"`
	Year                   int      `json:"year,omitempty"`
	RequiredWeeklyMeetings uint64   `json:"requiredWeeklyMeetings" validate:"gte=1,lte=14"`
	MeetingDurationMinutes uint64   `json:"meetingDurationMinutes" validate:"gte=1,lte=1440"`
	EnrolledStudentIds     []string `json:"enrolledStudentIds" validate:"dive,required"`
	AssignedInstructorId   string   `json:"assignedInstructorId" validate:"required"`
	Capacity               uint64   `json:"capacity"`
	RequiredFeatures       []string `json:"requiredFeatures,omitempty" validate:"dive,required"`
}

func (section Section) Label() string {
	return fmt.Sprintf("%v-%v", section.CourseCode, section.SectionNumber)
}

type Classroom struct {
	Id       string   `json:"id" validate:"required"`
	Name     string   `json:"name"`
	Capacity uint64   `json:"capacity" validate:"gte=1"`
	Features []string `json:"features,omitempty" validate:"dive,required"`
}

// Supports checks whether the classroom offers every feature in the list
func (classroom Classroom) Supports(features []string) bool {
	return lo.Every(classroom.Features, features)
}

type Instructor struct {
	Id           string   `json:"id" validate:"required"`
	Name         string   `json:"name"`
	Availability [][]bool `json:"availability,omitempty"` // Availability[period][day]; nil means the whole grid
}

func (instructor Instructor) Available(day, period uint64) bool {
	if instructor.Availability == nil {
		return true
	}
	return instructor.Availability[period][day]
}

type Enrollment struct {
	SectionId string `json:"sectionId" validate:"required"`
	StudentId string `json:"studentId" validate:"required"`
}

type RawModelInput struct {
	Scope       Scope
	Grid        Grid
	Sections    []Section    `validate:"dive"`
	Classrooms  []Classroom  `validate:"dive"`
	Instructors []Instructor `validate:"dive"`
	Enrollments []Enrollment `validate:"dive"`
}

// ModelInput is the validated, immutable snapshot a generation run works on.
// Sections, classrooms and instructors are sorted by id.
type ModelInput struct {
	Scope       Scope        `json:"scope"`
	Grid        Grid         `json:"grid"`
	Sections    []Section    `json:"sections"`
	Classrooms  []Classroom  `json:"classrooms"`
	Instructors []Instructor `json:"instructors"`

	sectionIndex    map[string]int
	classroomIndex  map[string]int
	instructorIndex map[string]int
}

// Enrollments flattens the students of every section, in section order
func (input ModelInput) Enrollments() []Enrollment {
	enrollments := make([]Enrollment, 0)
	for _, section := range input.Sections {
		for _, student := range section.EnrolledStudentIds {
			enrollments = append(enrollments, Enrollment{SectionId: section.Id, StudentId: student})
		}
	}
	return enrollments
}

func (input ModelInput) Section(id string) (Section, bool) {
	index, ok := input.sectionIndex[id]
	if !ok {
		return Section{}, false
	}
	return input.Sections[index], true
}

func (input ModelInput) Classroom(id string) (Classroom, bool) {
	index, ok := input.classroomIndex[id]
	if !ok {
		return Classroom{}, false
	}
	return input.Classrooms[index], true
}

func (input ModelInput) Instructor(id string) (Instructor, bool) {
	index, ok := input.instructorIndex[id]
	if !ok {
		return Instructor{}, false
	}
	return input.Instructors[index], true
}

func (input ModelInput) SectionIndex(id string) (int, bool) {
	index, ok := input.sectionIndex[id]
	return index, ok
}

func (input ModelInput) ClassroomIndex(id string) (int, bool) {
	index, ok := input.classroomIndex[id]
	return index, ok
}

func (input ModelInput) InstructorIndex(id string) (int, bool) {
	index, ok := input.instructorIndex[id]
	return index, ok
}

// TotalMeetings is the number of entries a feasible schedule of the input contains
func (input ModelInput) TotalMeetings() uint64 {
	return lo.SumBy(input.Sections, func(section Section) uint64 { return section.RequiredWeeklyMeetings })
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func InputFromJson(file string) (ModelInput, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return ModelInput{}, err
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return ModelInput{}, err
	}

	var rawInput RawModelInput
	if err := DecodeRawInput(inputJson, &rawInput); err != nil {
		return ModelInput{}, err
	}
	return NewModelInput(rawInput)
}

// DecodeRawInput maps loosely typed data (decoded JSON, for instance) into a RawModelInput
func DecodeRawInput(data map[string]any, rawInput *RawModelInput) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: domainDecodeHook,
		Result:     rawInput,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func domainDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to {
	case reflect.TypeOf(ClockTime(0)):
		return ParseClockTime(data.(string))
	case reflect.TypeOf(time.Weekday(0)):
		return ParseWeekday(data.(string))
	case reflect.TypeOf(Period{}):
		return ParsePeriod(data.(string))
	}
	return data, nil
}

func NewModelInput(rawInput RawModelInput) (ModelInput, error) {
	if err := validate.Struct(rawInput.Scope); err != nil {
		return ModelInput{}, fmt.Errorf("%w: %v", ErrInvalidScope, translate(err))
	}
	if err := validate.Struct(rawInput); err != nil {
		return ModelInput{}, translate(err)
	}
	if err := rawInput.Grid.validate(); err != nil {
		return ModelInput{}, err
	}

	input := ModelInput{
		Scope: rawInput.Scope,
		Grid:  rawInput.Grid,
	}

	//** Sort and index resources
	input.Sections = slices.Clone(rawInput.Sections)
	input.Classrooms = slices.Clone(rawInput.Classrooms)
	input.Instructors = slices.Clone(rawInput.Instructors)
	slices.SortFunc(input.Sections, func(a, b Section) int { return strings.Compare(a.Id, b.Id) })
	slices.SortFunc(input.Classrooms, func(a, b Classroom) int { return strings.Compare(a.Id, b.Id) })
	slices.SortFunc(input.Instructors, func(a, b Instructor) int { return strings.Compare(a.Id, b.Id) })

	var err error
	if input.sectionIndex, err = indexIds("Sections", lo.Map(input.Sections, func(section Section, _ int) string { return section.Id })); err != nil {
		return ModelInput{}, err
	}
	if input.classroomIndex, err = indexIds("Classrooms", lo.Map(input.Classrooms, func(classroom Classroom, _ int) string { return classroom.Id })); err != nil {
		return ModelInput{}, err
	}
	if input.instructorIndex, err = indexIds("Instructors", lo.Map(input.Instructors, func(instructor Instructor, _ int) string { return instructor.Id })); err != nil {
		return ModelInput{}, err
	}

	if len(input.Sections) == 0 {
		return ModelInput{}, fmt.Errorf("%w: scope %v has no sections", ErrInvalidScope, input.Scope.Key())
	}

	//** Check instructors' availability matrices
	for i, instructor := range input.Instructors {
		if instructor.Availability == nil {
			continue
		}
		field := fmt.Sprintf("Instructors[%d].Availability", i)
		if uint64(len(instructor.Availability)) != input.Grid.TotalPeriods() {
			return ModelInput{}, &ValidationError{Field: field, Reason: fmt.Sprintf("expected %d periods, got %d", input.Grid.TotalPeriods(), len(instructor.Availability))}
		}
		for period, row := range instructor.Availability {
			if uint64(len(row)) != input.Grid.TotalDays() {
				return ModelInput{}, &ValidationError{Field: fmt.Sprintf("%v[%d]", field, period), Reason: fmt.Sprintf("expected %d days, got %d", input.Grid.TotalDays(), len(row))}
			}
		}
	}

	//** Fold enrollments into sections
	for i := range input.Sections {
		input.Sections[i].EnrolledStudentIds = slices.Clone(input.Sections[i].EnrolledStudentIds)
	}
	for i, enrollment := range rawInput.Enrollments {
		index, ok := input.sectionIndex[enrollment.SectionId]
		if !ok {
			return ModelInput{}, &ValidationError{Field: fmt.Sprintf("Enrollments[%d].SectionId", i), Reason: fmt.Sprintf("unknown section %q", enrollment.SectionId)}
		}
		input.Sections[index].EnrolledStudentIds = append(input.Sections[index].EnrolledStudentIds, enrollment.StudentId)
	}

	//** Check sections
	for i := range input.Sections {
		section := &input.Sections[i]
		field := fmt.Sprintf("Sections[%d]", i)

		section.EnrolledStudentIds = lo.Uniq(section.EnrolledStudentIds)
		slices.Sort(section.EnrolledStudentIds)
		section.RequiredFeatures = lo.Uniq(section.RequiredFeatures)
		slices.Sort(section.RequiredFeatures)

		if _, ok := input.instructorIndex[section.AssignedInstructorId]; !ok {
			return ModelInput{}, &ValidationError{Field: field + ".AssignedInstructorId", Reason: fmt.Sprintf("unknown instructor %q", section.AssignedInstructorId)}
		}
		if !input.Scope.Contains(*section) {
			return ModelInput{}, &ValidationError{Field: field, Reason: fmt.Sprintf("section %v does not belong to scope %v", section.Id, input.Scope.Key())}
		}
		if section.Capacity > 0 && uint64(len(section.EnrolledStudentIds)) > section.Capacity {
			return ModelInput{}, &ValidationError{Field: field + ".EnrolledStudentIds", Reason: fmt.Sprintf("%d students exceed the section capacity %d", len(section.EnrolledStudentIds), section.Capacity)}
		}
	}

	return input, nil
}

func indexIds(field string, ids []string) (map[string]int, error) {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := index[id]; ok {
			return nil, &ValidationError{Field: fmt.Sprintf("%v[%d].Id", field, i), Reason: fmt.Sprintf("duplicate id %q", id)}
		}
		index[id] = i
	}
	return index, nil
}

// translate reports the first failing field of a validator error
func translate(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fieldError := fieldErrors[0]
	reason := fieldError.Tag()
	if fieldError.Param() != "" {
		reason = fmt.Sprintf("%v=%v", reason, fieldError.Param())
	}
	return &ValidationError{
		Field:  strings.TrimPrefix(fieldError.Namespace(), "RawModelInput."),
		Reason: fmt.Sprintf("failed %q rule (value %v)", reason, fieldError.Value()),
	}
}
