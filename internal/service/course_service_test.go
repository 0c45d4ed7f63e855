package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses      map[string]*models.Course
	created      []*models.Course
	flags        map[string]models.ActorSide
	flagsCleared bool
	studies      map[string][]models.CourseStudy
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		courses: map[string]*models.Course{},
		flags:   map[string]models.ActorSide{},
		studies: map[string][]models.CourseStudy{},
	}
}

func (r *fakeCourseRepo) Create(_ context.Context, course *models.Course, studyID string, studyYear *int) error {
	if course.ID == "" {
		course.ID = "course-generated"
	}
	copied := *course
	r.courses[course.ID] = &copied
	r.created = append(r.created, &copied)
	if studyID != "" {
		r.studies[course.ID] = append(r.studies[course.ID], models.CourseStudy{StudyID: studyID, StudyYear: studyYear})
	}
	return nil
}

func (r *fakeCourseRepo) GetByID(_ context.Context, id string) (*models.Course, error) {
	course, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (r *fakeCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.Course, int, error) {
	out := make([]models.Course, 0, len(r.courses))
	for _, course := range r.courses {
		out = append(out, *course)
	}
	return out, len(out), nil
}

func (r *fakeCourseRepo) Update(_ context.Context, course *models.Course) error {
	copied := *course
	r.courses[course.ID] = &copied
	return nil
}

func (r *fakeCourseRepo) SetUpdatedFlag(_ context.Context, id string, side models.ActorSide) error {
	r.flags[id] = side
	return nil
}

func (r *fakeCourseRepo) ResetUpdatedFlags(_ context.Context) error {
	r.flagsCleared = true
	return nil
}

func (r *fakeCourseRepo) ReplaceTeachers(_ context.Context, courseID string, teacherIDs []string) error {
	if course, ok := r.courses[courseID]; ok {
		course.TeacherIDs = teacherIDs
	}
	return nil
}

func (r *fakeCourseRepo) ListStudies(_ context.Context, courseID string) ([]models.CourseStudy, error) {
	return r.studies[courseID], nil
}

type fakeCourseMSPs struct {
	byCourse map[string][]models.MSP
	lines    map[string][]models.MSPLine
}

func (r *fakeCourseMSPs) ListByCourse(_ context.Context, courseID string) ([]models.MSP, error) {
	return r.byCourse[courseID], nil
}

func (r *fakeCourseMSPs) ListLines(_ context.Context, mspID string) ([]models.MSPLine, error) {
	return r.lines[mspID], nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateProgress(_ context.Context) { f.calls++ }

func newCourseServiceForTest(repo *fakeCourseRepo, msps *fakeCourseMSPs, teachers *stubCounter, cache *fakeInvalidator) *CourseService {
	defaultWindow := models.ReportingWindow{Year: 2026, Period: models.PeriodQ1}
	return NewCourseService(repo, msps, teachers, cache, defaultWindow, nil, nil)
}

func TestResolveWindowDefaults(t *testing.T) {
	svc := newCourseServiceForTest(newFakeCourseRepo(), &fakeCourseMSPs{}, &stubCounter{}, nil)

	window, err := svc.ResolveWindow(nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportingWindow{Year: 2026, Period: models.PeriodQ1}, window)

	year := 2027
	window, err = svc.ResolveWindow(&year, models.PeriodS2)
	require.NoError(t, err)
	assert.Equal(t, models.ReportingWindow{Year: 2027, Period: models.PeriodS2}, window)

	_, err = svc.ResolveWindow(nil, models.Period("Q9"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseCreateValidatesTeachers(t *testing.T) {
	repo := newFakeCourseRepo()
	teachers := &stubCounter{known: map[string]bool{"t1": true}}
	svc := newCourseServiceForTest(repo, &fakeCourseMSPs{}, teachers, nil)

	_, err := svc.Create(context.Background(), dto.CreateCourseRequest{
		Name:         "Calculus",
		CourseCode:   "MATH1",
		Period:       models.PeriodQ1,
		CalendarYear: 2026,
		TeacherIDs:   []string{"t1", "ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestCourseCreateLinksStudyAndInvalidatesProgress(t *testing.T) {
	repo := newFakeCourseRepo()
	teachers := &stubCounter{known: map[string]bool{"t1": true}}
	cache := &fakeInvalidator{}
	svc := newCourseServiceForTest(repo, &fakeCourseMSPs{}, teachers, cache)

	year := 1
	course, err := svc.Create(context.Background(), dto.CreateCourseRequest{
		Name:         "Calculus",
		CourseCode:   "MATH1",
		Period:       models.PeriodQ1,
		CalendarYear: 2026,
		TeacherIDs:   []string{"t1"},
		StudyID:      "s1",
		StudyYear:    &year,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
	require.Len(t, repo.studies[course.ID], 1)
	assert.Equal(t, "s1", repo.studies[course.ID][0].StudyID)
	assert.Equal(t, 1, cache.calls)
}

func TestCourseCreateRejectsUnknownPeriod(t *testing.T) {
	svc := newCourseServiceForTest(newFakeCourseRepo(), &fakeCourseMSPs{}, &stubCounter{}, nil)

	_, err := svc.Create(context.Background(), dto.CreateCourseRequest{
		Name:         "Calculus",
		CourseCode:   "MATH1",
		Period:       models.Period("Q9"),
		CalendarYear: 2026,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseListDerivesProcessCounts(t *testing.T) {
	repo := newFakeCourseRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Name: "Calculus", Period: models.PeriodQ1, CalendarYear: 2026}

	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	book := models.Material{ID: "m1", Kind: models.MaterialBook, Name: "Calculus"}
	msps := &fakeCourseMSPs{
		byCourse: map[string][]models.MSP{"c1": {{ID: "msp-1"}, {ID: "msp-2"}, {ID: "msp-3"}}},
		lines: map[string][]models.MSPLine{
			"msp-1": {
				{ID: "l1", Seq: 1, Type: models.MSPLineRequestMaterial, Time: at},
				{ID: "l2", Seq: 2, Type: models.MSPLineSetAvailableMaterials, Time: at.Add(time.Minute), Materials: []models.Material{book}},
				{ID: "l3", Seq: 3, Type: models.MSPLineApproveMaterial, Time: at.Add(2 * time.Minute), Materials: []models.Material{book}},
			},
			"msp-2": {
				{ID: "l1", Seq: 1, Type: models.MSPLineSetAvailableMaterials, Time: at, Materials: []models.Material{book}},
			},
			"msp-3": {
				{ID: "l1", Seq: 1, Type: models.MSPLineRequestMaterial, Time: at},
			},
		},
	}
	svc := newCourseServiceForTest(repo, msps, &stubCounter{}, nil)

	items, pagination, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].MSPTotal)
	assert.Equal(t, 1, items[0].MSPResolved)
	assert.Equal(t, 1, items[0].NeedsApproval)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestMarkCheckedUsesActorSide(t *testing.T) {
	repo := newFakeCourseRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Name: "Calculus"}
	cache := &fakeInvalidator{}
	svc := newCourseServiceForTest(repo, &fakeCourseMSPs{}, &stubCounter{}, cache)

	_, err := svc.MarkChecked(context.Background(), "c1", teacherActor())
	require.NoError(t, err)
	assert.Equal(t, models.SideTeacher, repo.flags["c1"])

	_, err = svc.MarkChecked(context.Background(), "c1", boecieActor())
	require.NoError(t, err)
	assert.Equal(t, models.SideBoecie, repo.flags["c1"])
	assert.Equal(t, 2, cache.calls)

	_, err = svc.MarkChecked(context.Background(), "missing", boecieActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOpenNewWindowResetsFlags(t *testing.T) {
	repo := newFakeCourseRepo()
	cache := &fakeInvalidator{}
	svc := newCourseServiceForTest(repo, &fakeCourseMSPs{}, &stubCounter{}, cache)

	require.NoError(t, svc.OpenNewWindow(context.Background()))
	assert.True(t, repo.flagsCleared)
	assert.Equal(t, 1, cache.calls)
}

func TestCourseListStudiesUnknownCourse(t *testing.T) {
	svc := newCourseServiceForTest(newFakeCourseRepo(), &fakeCourseMSPs{}, &stubCounter{}, nil)

	_, err := svc.ListStudies(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
