package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/model"
)

func TestCheckMergeable(t *testing.T) {
	unresolved := func(id, project int64) mergeCandidate {
		return mergeCandidate{ID: id, ProjectID: project, Status: model.GroupStatusUnresolved}
	}

	require.NoError(t, checkMergeable([]mergeCandidate{unresolved(3, 1), unresolved(4, 1), unresolved(5, 1)}, 3))

	tests := []struct {
		name   string
		locked []mergeCandidate
		want   int
	}{
		{"a group was deleted", []mergeCandidate{unresolved(3, 1)}, 2},
		{"a group moved project", []mergeCandidate{unresolved(3, 1), unresolved(4, 2)}, 2},
		{"a group is already merging", []mergeCandidate{
			unresolved(3, 1),
			{ID: 4, ProjectID: 1, Status: model.GroupStatusPendingMerge},
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, checkMergeable(tt.locked, tt.want), ErrMergeConflict)
		})
	}
}
