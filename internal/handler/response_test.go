package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"smarthub/internal/usecase"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{usecase.NewHTTPError(http.StatusConflict, "order already paid"), http.StatusConflict, `{"error":"order already paid"}`},
		{fmt.Errorf("%w: invalid email", usecase.ErrValidation), http.StatusBadRequest, `{"error":"validation error: invalid email"}`},
		{usecase.ErrUnauthorized, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{usecase.ErrForbidden, http.StatusForbidden, `{"error":"forbidden"}`},
		{usecase.ErrConflict, http.StatusConflict, `{"error":"conflict"}`},
		{errors.New("boom"), http.StatusInternalServerError, `{"error":"internal error"}`},
	}
	for _, tc := range cases {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		assert.NoError(t, writeError(c, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.JSONEq(t, tc.body, rec.Body.String())
	}
}
