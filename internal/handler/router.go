package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/middleware"
	"github.com/campushq/registrar-api/internal/models"
	"github.com/campushq/registrar-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Registrations *RegistrationHandler
	Grades        *GradeHandler
	Transcripts   *TranscriptHandler
	Sections      *SectionHandler
	Courses       *CourseHandler
	Departments   *DepartmentHandler
	Semesters     *SemesterHandler
	Announcements *AnnouncementHandler
}

// RegisterRoutes mounts all API routes under the prefix. Every route requires
// a verified identity; write access is restricted per resource.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, verifier *middleware.TokenVerifier, metrics *service.MetricsService) {
	api := r.Group(prefix)
	api.Use(middleware.Metrics(metrics))
	api.Use(middleware.Identity(verifier))

	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	teachingStaff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher, models.RoleStudent)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), middleware.SelfParam)

	departments := api.Group("/departments")
	{
		departments.GET("", anyRole, h.Departments.List)
		departments.GET("/:id", anyRole, h.Departments.Get)
		departments.POST("", staffOnly, h.Departments.Create)
		departments.PUT("/:id", staffOnly, h.Departments.Update)
		departments.DELETE("/:id", staffOnly, h.Departments.Delete)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", anyRole, h.Courses.List)
		courses.GET("/:id", anyRole, h.Courses.Get)
		courses.POST("", staffOnly, h.Courses.Create)
		courses.PUT("/:id", staffOnly, h.Courses.Update)
		courses.DELETE("/:id", staffOnly, h.Courses.Delete)
		courses.GET("/:id/prerequisites", anyRole, h.Courses.ListPrerequisites)
		courses.POST("/:id/prerequisites", staffOnly, h.Courses.AddPrerequisite)
		courses.DELETE("/:id/prerequisites/:prereqId", staffOnly, h.Courses.RemovePrerequisite)
	}

	semesters := api.Group("/semesters")
	{
		semesters.GET("", anyRole, h.Semesters.List)
		semesters.GET("/:id", anyRole, h.Semesters.Get)
		semesters.POST("", staffOnly, h.Semesters.Create)
		semesters.PUT("/:id", staffOnly, h.Semesters.Update)
		semesters.DELETE("/:id", staffOnly, h.Semesters.Delete)
	}

	sections := api.Group("/sections")
	{
		sections.GET("", anyRole, h.Sections.List)
		sections.GET("/:id", anyRole, h.Sections.Get)
		sections.POST("", staffOnly, h.Sections.Create)
		sections.PUT("/:id", staffOnly, h.Sections.Update)
		sections.DELETE("/:id", staffOnly, h.Sections.Delete)

		sections.GET("/:id/roster", teachingStaff, h.Registrations.Roster)

		sections.GET("/:id/assessments", teachingStaff, h.Grades.ListAssessments)
		sections.POST("/:id/assessments", teachingStaff, h.Grades.CreateAssessment)
		sections.GET("/:id/grades", teachingStaff, h.Grades.GradeSheet)
		sections.PUT("/:id/grades", teachingStaff, h.Grades.SaveScores)
	}

	assessments := api.Group("/assessments")
	{
		assessments.PUT("/:id", teachingStaff, h.Grades.UpdateAssessment)
		assessments.DELETE("/:id", teachingStaff, h.Grades.DeleteAssessment)
	}

	registrations := api.Group("/registrations")
	{
		registrations.GET("", staffOnly, h.Registrations.List)
		registrations.POST("", anyRole, h.Registrations.Register)
	}

	students := api.Group("/students")
	{
		students.DELETE("/:studentId/registrations/:sectionId", staffOrSelf, h.Registrations.Drop)
		students.GET("/:studentId/gpa", staffOrSelf, h.Transcripts.GPA)
		students.GET("/:studentId/transcript", staffOrSelf, h.Transcripts.Transcript)
		students.GET("/:studentId/transcript/export", staffOrSelf, h.Transcripts.Export)
	}

	announcements := api.Group("/announcements")
	{
		announcements.GET("", anyRole, h.Announcements.List)
		announcements.GET("/:id", anyRole, h.Announcements.Get)
		announcements.POST("", teachingStaff, h.Announcements.Create)
		announcements.PUT("/:id", teachingStaff, h.Announcements.Update)
		announcements.DELETE("/:id", teachingStaff, h.Announcements.Delete)
	}
}
