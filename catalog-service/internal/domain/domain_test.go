package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentProfileConfigured(t *testing.T) {
	tests := []struct {
		name    string
		profile PaymentProfile
		want    bool
	}{
		{name: "complete", profile: PaymentProfile{Setup: true, BankAccNo: "1001", BankSecretKey: "s"}, want: true},
		{name: "flag unset", profile: PaymentProfile{Setup: false, BankAccNo: "1001", BankSecretKey: "s"}, want: false},
		{name: "missing secret", profile: PaymentProfile{Setup: true, BankAccNo: "1001"}, want: false},
		{name: "blank account", profile: PaymentProfile{Setup: true, BankAccNo: "  ", BankSecretKey: "s"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Configured(); got != tt.want {
				t.Fatalf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCourseValidate(t *testing.T) {
	valid := func() NewCourse {
		return NewCourse{
			Title: " Go 101 ",
			Price: decimal.RequireFromString("30"),
			Lectures: []NewLecture{{
				Title:     "Intro",
				VideoPath: "uploads/videos/intro.mp4",
				Materials: []NewMaterial{{FilePath: "uploads/materials/slides.pdf"}},
			}},
		}
	}

	c := valid()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Title != "Go 101" {
		t.Fatalf("expected trimmed title, got %q", c.Title)
	}
	if m := c.Lectures[0].Materials[0]; m.FileName != "slides.pdf" || m.MaterialType != "document" {
		t.Fatalf("expected material defaults, got %+v", m)
	}

	tests := []struct {
		name   string
		mutate func(*NewCourse)
	}{
		{name: "no title", mutate: func(c *NewCourse) { c.Title = "" }},
		{name: "negative price", mutate: func(c *NewCourse) { c.Price = decimal.RequireFromString("-1") }},
		{name: "sub-cent price", mutate: func(c *NewCourse) { c.Price = decimal.RequireFromString("1.001") }},
		{name: "no lectures", mutate: func(c *NewCourse) { c.Lectures = nil }},
		{name: "lecture without video", mutate: func(c *NewCourse) { c.Lectures[0].VideoPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
