/**
 * @description
 * HTTP router setup for the catalog-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mehedi-4/LMS/catalog-service/internal/app"
)

// NewRouter creates a new Chi router and registers catalog routes.
func NewRouter(h *Handler, tokens TokenParser, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "Backend is running"})
		})

		r.Post("/student/signup", h.handleStudentSignup)
		r.Post("/student/login", h.handleStudentLogin)
		r.Post("/instructor/signup", h.handleInstructorSignup)
		r.Post("/login", h.handleInstructorLogin)

		r.Get("/courses", h.handleListCourses)
		r.Get("/courses/{courseID}", h.handleGetCourse)
		r.Get("/courses/instructor/{instructorID}", h.handleListInstructorCourses)

		r.Group(func(r chi.Router) {
			r.Use(RoleAuthMiddleware(tokens, app.RoleStudent))
			r.Post("/student/payment-setup", h.handleStudentPaymentSetup)
			r.Get("/student/balance", h.handleStudentBalance)
			r.Get("/student/enrollments", h.handleListEnrollments)
		})

		r.Group(func(r chi.Router) {
			r.Use(RoleAuthMiddleware(tokens, app.RoleInstructor))
			r.Post("/instructor/payment-setup", h.handleInstructorPaymentSetup)
			r.Post("/courses/upload", h.handleUploadCourse)
		})
	})

	r.With(RoleAuthMiddleware(tokens, app.RoleStudent)).Post("/enroll", h.handleEnroll)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/payouts", h.handlePayout)
		r.Post("/reconciliation/run", h.handleRunReconciliation)
	})

	return r
}
