/**
 * @description
 * Course catalogue models and upload validation.
 */
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Course is a priced bundle of lectures owned by one instructor.
type Course struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	InstructorID int64           `json:"instructorId"`
	CreatedAt    time.Time       `json:"createdAt"`
	Lectures     []Lecture       `json:"lectures,omitempty"`
}

// Lecture is one numbered video inside a course.
type Lecture struct {
	ID            int64      `json:"id"`
	CourseID      int64      `json:"courseId"`
	LectureNumber int        `json:"lectureNumber"`
	Title         string     `json:"title"`
	VideoPath     string     `json:"videoPath"`
	Materials     []Material `json:"materials"`
}

// Material is a supplementary file attached to a lecture.
type Material struct {
	ID           int64  `json:"id"`
	LectureID    int64  `json:"lectureId"`
	MaterialType string `json:"materialType"`
	FilePath     string `json:"filePath"`
	FileName     string `json:"fileName"`
}

// NewCourse is the validated payload for a course upload.
type NewCourse struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Lectures    []NewLecture
}

type NewLecture struct {
	Title     string
	VideoPath string
	Materials []NewMaterial
}

type NewMaterial struct {
	MaterialType string
	FilePath     string
	FileName     string
}

// Validate checks the upload rules and normalizes whitespace in place.
func (c *NewCourse) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	if c.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if c.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if !c.Price.Equal(c.Price.Round(2)) {
		return fmt.Errorf("%w: price must have at most two decimal places", ErrInvalidInput)
	}
	if len(c.Lectures) == 0 {
		return fmt.Errorf("%w: at least one lecture is required", ErrInvalidInput)
	}
	for i := range c.Lectures {
		lec := &c.Lectures[i]
		lec.Title = strings.TrimSpace(lec.Title)
		lec.VideoPath = strings.TrimSpace(lec.VideoPath)
		if lec.Title == "" || lec.VideoPath == "" {
			return fmt.Errorf("%w: lecture %d requires a title and a video", ErrInvalidInput, i+1)
		}
		for j := range lec.Materials {
			m := &lec.Materials[j]
			m.FilePath = strings.TrimSpace(m.FilePath)
			if m.FilePath == "" {
				return fmt.Errorf("%w: lecture %d material %d requires a file path", ErrInvalidInput, i+1, j+1)
			}
			if strings.TrimSpace(m.MaterialType) == "" {
				m.MaterialType = "document"
			}
			if strings.TrimSpace(m.FileName) == "" {
				m.FileName = m.FilePath[strings.LastIndex(m.FilePath, "/")+1:]
			}
		}
	}
	return nil
}
