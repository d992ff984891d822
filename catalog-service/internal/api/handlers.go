/**
 * @description
 * HTTP handlers for the catalog API. Handlers decode the request, resolve the
 * authenticated principal and delegate to the application services.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mehedi-4/LMS/catalog-service/internal/app"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/shopspring/decimal"
)

type AuthService interface {
	SignupStudent(ctx context.Context, username, password string) (*app.StudentSession, error)
	LoginStudent(ctx context.Context, username, password string) (*app.StudentSession, error)
	SignupInstructor(ctx context.Context, username, password string) (*app.InstructorSession, error)
	LoginInstructor(ctx context.Context, username, password string) (*app.InstructorSession, error)
}

type ProfileService interface {
	SetupStudentPayment(ctx context.Context, studentID int64, bankAccNo, bankSecretKey string) (*domain.Student, error)
	SetupInstructorPayment(ctx context.Context, instructorID int64, bankAccNo, bankSecretKey string) (*domain.Instructor, error)
	StudentBalance(ctx context.Context, studentID int64) (decimal.Decimal, error)
}

type CourseService interface {
	Upload(ctx context.Context, instructorID int64, course domain.NewCourse) (*domain.Course, error)
	Get(ctx context.Context, courseID int64) (*domain.Course, error)
	List(ctx context.Context) ([]domain.Course, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Course, error)
}

type EnrollmentService interface {
	Enroll(ctx context.Context, studentID, courseID int64) (*app.EnrollResult, error)
	ListEnrollments(ctx context.Context, studentID int64) ([]domain.Enrollment, error)
}

type PayoutService interface {
	PayInstructor(ctx context.Context, instructorID int64, amount decimal.Decimal, idempotencyKey string) (*app.PayoutResult, error)
}

type ReconcileService interface {
	Run(ctx context.Context) (app.ReconcileSummary, error)
}

// Services bundles the application services the handlers depend on.
type Services struct {
	Auth        AuthService
	Profiles    ProfileService
	Courses     CourseService
	Enrollments EnrollmentService
	Payouts     PayoutService
	Reconciler  ReconcileService
}

// Handler holds the services that handlers interact with.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type paymentSetupRequest struct {
	BankAccNo     string `json:"bankAccNo"`
	BankSecretKey string `json:"bankSecretKey"`
}

type materialRequest struct {
	MaterialType string `json:"materialType"`
	FilePath     string `json:"filePath"`
	FileName     string `json:"fileName"`
}

type lectureRequest struct {
	Title     string            `json:"title"`
	VideoPath string            `json:"videoPath"`
	Materials []materialRequest `json:"materials"`
}

type uploadCourseRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Lectures    []lectureRequest `json:"lectures"`
}

type enrollRequest struct {
	StudentID int64 `json:"studentId"`
	CourseID  int64 `json:"courseId"`
}

type payoutRequest struct {
	InstructorID int64            `json:"instructorId"`
	Amount       *decimal.Decimal `json:"amount"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		unauthorized(w, "Could not identify user from token")
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "Invalid "+param)
		return 0, false
	}
	return id, true
}

func (h *Handler) handleStudentSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.svc.Auth.SignupStudent(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Signup successful",
		"token":   session.Token,
		"student": session.Student,
	})
}

func (h *Handler) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.svc.Auth.LoginStudent(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Login successful",
		"token":   session.Token,
		"student": session.Student,
	})
}

func (h *Handler) handleInstructorSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.svc.Auth.SignupInstructor(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"message":    "Signup successful",
		"token":      session.Token,
		"instructor": session.Instructor,
	})
}

func (h *Handler) handleInstructorLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.svc.Auth.LoginInstructor(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Login successful",
		"token":      session.Token,
		"instructor": session.Instructor,
	})
}

func (h *Handler) handleStudentPaymentSetup(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req paymentSetupRequest
	if !h.decode(w, r, &req) {
		return
	}
	student, err := h.svc.Profiles.SetupStudentPayment(r.Context(), studentID, req.BankAccNo, req.BankSecretKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Payment setup completed",
		"student": student,
	})
}

func (h *Handler) handleInstructorPaymentSetup(w http.ResponseWriter, r *http.Request) {
	instructorID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req paymentSetupRequest
	if !h.decode(w, r, &req) {
		return
	}
	instructor, err := h.svc.Profiles.SetupInstructorPayment(r.Context(), instructorID, req.BankAccNo, req.BankSecretKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Payment setup completed",
		"instructor": instructor,
	})
}

func (h *Handler) handleStudentBalance(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.principal(w, r)
	if !ok {
		return
	}
	balance, err := h.svc.Profiles.StudentBalance(r.Context(), studentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"balance": balance.StringFixed(2),
	})
}

func (h *Handler) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.principal(w, r)
	if !ok {
		return
	}
	enrollments, err := h.svc.Enrollments.ListEnrollments(r.Context(), studentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"enrollments": enrollments,
	})
}

func (h *Handler) handleUploadCourse(w http.ResponseWriter, r *http.Request) {
	instructorID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req uploadCourseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price == nil {
		badRequest(w, "price is required")
		return
	}

	course := domain.NewCourse{
		Title:       req.Title,
		Description: req.Description,
		Price:       *req.Price,
	}
	for _, lec := range req.Lectures {
		lecture := domain.NewLecture{Title: lec.Title, VideoPath: lec.VideoPath}
		for _, m := range lec.Materials {
			lecture.Materials = append(lecture.Materials, domain.NewMaterial{
				MaterialType: m.MaterialType,
				FilePath:     m.FilePath,
				FileName:     m.FileName,
			})
		}
		course.Lectures = append(course.Lectures, lecture)
	}

	created, err := h.svc.Courses.Upload(r.Context(), instructorID, course)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"message":  "Course uploaded successfully",
		"courseId": created.ID,
		"course":   created,
	})
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.svc.Courses.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCourses(w, courses)
}

func (h *Handler) handleListInstructorCourses(w http.ResponseWriter, r *http.Request) {
	instructorID, ok := pathID(w, r, "instructorID")
	if !ok {
		return
	}
	courses, err := h.svc.Courses.ListByInstructor(r.Context(), instructorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCourses(w, courses)
}

func writeCourses(w http.ResponseWriter, courses []domain.Course) {
	if courses == nil {
		courses = []domain.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"courses": courses,
	})
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	course, err := h.svc.Courses.Get(r.Context(), courseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"course":  course,
	})
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req enrollRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CourseID <= 0 {
		badRequest(w, "studentId and courseId are required")
		return
	}
	if req.StudentID != 0 && req.StudentID != studentID {
		writeError(w, h.logger, domain.ErrForbidden)
		return
	}

	result, err := h.svc.Enrollments.Enroll(r.Context(), studentID, req.CourseID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	payload := map[string]interface{}{
		"success":      true,
		"message":      "Enrollment successful",
		"enrollmentId": result.Enrollment.ID,
		"free":         result.Free,
	}
	if result.AttemptID != nil {
		payload["paymentAttemptId"] = result.AttemptID.String()
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *Handler) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.InstructorID <= 0 || req.Amount == nil {
		badRequest(w, "instructorId and amount are required")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		badRequest(w, "Idempotency-Key header is required")
		return
	}

	result, err := h.svc.Payouts.PayInstructor(r.Context(), req.InstructorID, *req.Amount, key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Payout completed",
		"payout":  result,
	})
}

func (h *Handler) handleRunReconciliation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Reconciler.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": summary,
	})
}

// writeJSON is a helper function to write a JSON response.
func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
