package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateCourse inserts the course, its lectures and their materials in one transaction.
func (r *PostgresRepository) CreateCourse(ctx context.Context, instructorID int64, input domain.NewCourse) (*domain.Course, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin course transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	course := domain.Course{
		Title:        input.Title,
		Description:  input.Description,
		Price:        input.Price,
		InstructorID: instructorID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO courses (title, description, price, instructor_id)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at
	`, input.Title, input.Description, input.Price.StringFixed(2), instructorID).Scan(&course.ID, &course.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert course: %w", err)
	}

	for i, lec := range input.Lectures {
		lecture := domain.Lecture{
			CourseID:      course.ID,
			LectureNumber: i + 1,
			Title:         lec.Title,
			VideoPath:     lec.VideoPath,
			Materials:     []domain.Material{},
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO course_lectures (course_id, lecture_number, title, video_path)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, course.ID, lecture.LectureNumber, lecture.Title, lecture.VideoPath).Scan(&lecture.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert lecture %d: %w", lecture.LectureNumber, err)
		}

		for _, mat := range lec.Materials {
			material := domain.Material{
				LectureID:    lecture.ID,
				MaterialType: mat.MaterialType,
				FilePath:     mat.FilePath,
				FileName:     mat.FileName,
			}
			err = tx.QueryRow(ctx, `
				INSERT INTO course_materials (lecture_id, material_type, file_path, file_name)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, lecture.ID, material.MaterialType, material.FilePath, material.FileName).Scan(&material.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to insert material for lecture %d: %w", lecture.LectureNumber, err)
			}
			lecture.Materials = append(lecture.Materials, material)
		}
		course.Lectures = append(course.Lectures, lecture)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit course: %w", err)
	}
	return &course, nil
}

const courseColumns = `id, title, description, price::text, instructor_id, created_at`

func scanCourse(row pgx.Row) (*domain.Course, error) {
	var c domain.Course
	var price string
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &price, &c.InstructorID, &c.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price for course %d: %w", c.ID, err)
	}
	c.Price = parsed
	return &c, nil
}

// FindCourseByID returns a course with its lectures and materials.
func (r *PostgresRepository) FindCourseByID(ctx context.Context, id int64) (*domain.Course, error) {
	course, err := scanCourse(r.db.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	courses := []domain.Course{*course}
	if err := r.attachLectures(ctx, courses); err != nil {
		return nil, err
	}
	return &courses[0], nil
}

// ListCourses returns the catalogue without lecture details, newest first.
func (r *PostgresRepository) ListCourses(ctx context.Context) ([]domain.Course, error) {
	return r.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY created_at DESC, id DESC`)
}

// ListCoursesByInstructor returns an instructor's courses with lectures and materials.
func (r *PostgresRepository) ListCoursesByInstructor(ctx context.Context, instructorID int64) ([]domain.Course, error) {
	courses, err := r.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE instructor_id = $1 ORDER BY created_at DESC, id DESC`, instructorID)
	if err != nil {
		return nil, err
	}
	if err := r.attachLectures(ctx, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *PostgresRepository) queryCourses(ctx context.Context, query string, args ...interface{}) ([]domain.Course, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	courses := []domain.Course{}
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *course)
	}
	return courses, rows.Err()
}

// attachLectures loads lectures and materials for the given courses with two queries.
func (r *PostgresRepository) attachLectures(ctx context.Context, courses []domain.Course) error {
	if len(courses) == 0 {
		return nil
	}
	courseIDs := make([]int64, len(courses))
	byCourse := make(map[int64]int, len(courses))
	for i := range courses {
		courseIDs[i] = courses[i].ID
		byCourse[courses[i].ID] = i
		courses[i].Lectures = []domain.Lecture{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, course_id, lecture_number, title, video_path
		FROM course_lectures
		WHERE course_id = ANY($1::bigint[])
		ORDER BY course_id, lecture_number
	`, courseIDs)
	if err != nil {
		return fmt.Errorf("failed to query lectures: %w", err)
	}
	defer rows.Close()

	type lectureRef struct{ course, lecture int }
	byLecture := map[int64]lectureRef{}
	lectureIDs := []int64{}
	for rows.Next() {
		var l domain.Lecture
		if err := rows.Scan(&l.ID, &l.CourseID, &l.LectureNumber, &l.Title, &l.VideoPath); err != nil {
			return fmt.Errorf("failed to scan lecture: %w", err)
		}
		l.Materials = []domain.Material{}
		ci := byCourse[l.CourseID]
		courses[ci].Lectures = append(courses[ci].Lectures, l)
		byLecture[l.ID] = lectureRef{course: ci, lecture: len(courses[ci].Lectures) - 1}
		lectureIDs = append(lectureIDs, l.ID)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if len(lectureIDs) == 0 {
		return nil
	}

	matRows, err := r.db.Query(ctx, `
		SELECT id, lecture_id, material_type, file_path, file_name
		FROM course_materials
		WHERE lecture_id = ANY($1::bigint[])
		ORDER BY lecture_id, id
	`, lectureIDs)
	if err != nil {
		return fmt.Errorf("failed to query materials: %w", err)
	}
	defer matRows.Close()

	for matRows.Next() {
		var m domain.Material
		if err := matRows.Scan(&m.ID, &m.LectureID, &m.MaterialType, &m.FilePath, &m.FileName); err != nil {
			return fmt.Errorf("failed to scan material: %w", err)
		}
		ref := byLecture[m.LectureID]
		lec := &courses[ref.course].Lectures[ref.lecture]
		lec.Materials = append(lec.Materials, m)
	}
	return matRows.Err()
}
