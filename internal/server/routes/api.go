package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/usecase"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFromError maps a failure that produced no attempt to a status code.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConcurrentDeployment), errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrGateRejected):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFromError(err), &errorResponse{Error: err.Error()})
}

func RegisterAPI(injector *do.Injector, e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/environments/:env", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetEnvironmentUsecase](injector)
		status, err := usecase.Execute(c.Request().Context(), c.Param("env"))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, status)
	})

	api.GET("/environments/:env/deployments", func(c echo.Context) error {
		limit := 20
		if s := c.QueryParam("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return c.JSON(http.StatusBadRequest, &errorResponse{Error: "limit must be a non-negative integer"})
			}
			limit = n
		}
		usecase := do.MustInvoke[usecase.ListAttemptsUsecase](injector)
		attempts, err := usecase.Execute(c.Request().Context(), c.Param("env"), limit)
		if err != nil {
			return errorJSON(c, err)
		}

		type response struct {
			Deployments []*entity.DeploymentAttempt `json:"deployments"`
		}
		result := &response{Deployments: make([]*entity.DeploymentAttempt, len(attempts))}
		copy(result.Deployments, attempts)

		return c.JSON(http.StatusOK, result)
	})

	api.POST("/environments/:env/deployments", func(c echo.Context) error {
		type request struct {
			Image        string `json:"image"`
			GateExitCode *int   `json:"gate_exit_code"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, &errorResponse{Error: "malformed request body"})
		}

		uc := do.MustInvoke[usecase.ReleaseUsecase](injector)
		attempt, err := uc.Execute(c.Request().Context(), usecase.ReleaseInput{
			Env:          c.Param("env"),
			Image:        req.Image,
			GateExitCode: req.GateExitCode,
		})
		if attempt == nil {
			return errorJSON(c, err)
		}
		switch {
		case attempt.Outcome == entity.OutcomeSucceeded:
			return c.JSON(http.StatusCreated, attempt)
		case errors.Is(err, entity.ErrStateCorrupt):
			return c.JSON(http.StatusInternalServerError, attempt)
		}
		return c.JSON(http.StatusUnprocessableEntity, attempt)
	})

	api.GET("/deployments/:id", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetAttemptUsecase](injector)
		attempt, err := usecase.Execute(c.Request().Context(), entity.NewID(c.Param("id")))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, attempt)
	})
}
