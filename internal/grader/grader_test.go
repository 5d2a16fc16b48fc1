package grader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragqa/internal/domain"
)

func TestEmptinessGrader(t *testing.T) {
	g := EmptinessGrader{}
	ctx := context.Background()
	assert.Equal(t, domain.GradeInsufficient, g.Grade(ctx, ""))
	assert.Equal(t, domain.GradeInsufficient, g.Grade(ctx, " \n\t"))
	assert.Equal(t, domain.GradeSufficient, g.Grade(ctx, "경기 방식: 9이닝"))
}
