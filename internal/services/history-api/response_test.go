package historyapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/ledger"
	"github.com/NordCoder/Courier/internal/repository/postgres"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{fmt.Errorf("get: %w", postgres.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("get: %w", history.ErrNotFound), http.StatusNotFound, "not_found"},
		{postgres.ErrBadCursor, http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: %q", ledger.ErrInvalidStatus, "x"), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: a -> b", ledger.ErrInvalidTransition), http.StatusConflict, "conflict"},
		{echo.NewHTTPError(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed, "method_not_allowed"},
		{echo.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.New("pool closed"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		code, apiErr := mapError(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.name, apiErr.Code, tc.err.Error())
	}
}

func TestMapError_HidesInternalMessage(t *testing.T) {
	_, apiErr := mapError(errors.New("dial tcp 10.0.0.3:5432: refused"))
	assert.Equal(t, "internal server error", apiErr.Message)
}
