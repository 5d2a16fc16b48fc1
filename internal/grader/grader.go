// Package grader decides whether retrieved context can support an answer.
package grader

import (
	"context"
	"strings"

	"ragqa/internal/domain"
)

// EmptinessGrader treats any non-blank context as sufficient.
type EmptinessGrader struct{}

func (EmptinessGrader) Grade(ctx context.Context, text string) domain.Grade {
	if strings.TrimSpace(text) == "" {
		return domain.GradeInsufficient
	}
	return domain.GradeSufficient
}
