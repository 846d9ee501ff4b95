package sqlerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
)

func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"groups":         "group",
		"repositories":   "repository",
		"saved_searches": "saved_search",
		"identities":     "identity",
		"IDENTITIES":     "IDENTITY",
		"commit_authors": "commit_author",
		"access":         "access",
	}
	for in, want := range cases {
		assert.Equal(t, want, singularize(in), in)
	}
}

func TestHandleError_UniqueViolation(t *testing.T) {
	err := HandleError(&pgconn.PgError{
		Code:           "23505",
		Severity:       "ERROR",
		TableName:      "repositories",
		ConstraintName: "repositories_name_key",
	})

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "REPOSITORY_ALREADY_EXISTS", httpErr.Code)
	assert.Equal(t, "A Repository with this Name already exists", httpErr.Message)
}

func TestHandleError_NotNullViolation(t *testing.T) {
	err := HandleError(&pgconn.PgError{
		Code:       "23502",
		TableName:  "saved_searches",
		ColumnName: "query",
	})

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Len(t, httpErr.Errors, 1)
	assert.Equal(t, "query", httpErr.Errors[0].Field)
	assert.Equal(t, "SAVED_SEARCH_REQUIRED", httpErr.Code)
}

func TestHandleError_NoRowsNamesTable(t *testing.T) {
	err := HandleError(NotFound("saved_searches", pgx.ErrNoRows))

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "Saved Search not found", httpErr.Message)
}

func TestHandleError_PassesHTTPErrorThrough(t *testing.T) {
	in := errs.NewForbiddenError("no", true)
	assert.Same(t, in, HandleError(in))
}

func TestHandleError_UnknownIsInternal(t *testing.T) {
	assert.True(t, errs.HasStatus(HandleError(errors.New("boom")), http.StatusInternalServerError))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
