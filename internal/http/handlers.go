package http

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/logging"
	"github.com/fyrsmithlabs/escrowd/internal/task"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

func (s *Server) handleInitialize(c echo.Context) error {
	g, err := s.tasks.Initialize(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g)
}

func (s *Server) handleGlobalConfig(c echo.Context) error {
	g, err := s.tasks.GlobalConfig(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Debug("invalid create request", zap.Error(err))
		return invalidRequest("malformed body")
	}

	t, err := s.tasks.CreateTask(c.Request().Context(), task.CreateRequest{
		Name:         req.Name,
		LockedAmount: req.LockedAmount,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, CreateTaskResponse{
		ID:           t.ID.String(),
		Name:         t.Name,
		Creator:      t.Creator,
		Vault:        t.Vault,
		LockedAmount: t.LockedAmount,
	})
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks, err := s.tasks.ListTasks(c.Request().Context())
	if err != nil {
		return err
	}

	resp := ListTasksResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, newTaskResponse(t))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetTask(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	ctx := logging.WithTaskName(c.Request().Context(), name)

	t, err := s.tasks.GetTask(ctx, name)
	if err != nil {
		return err
	}

	resp := newTaskResponse(t)
	bal, err := s.balances.Balance(ctx, t.Vault)
	if err != nil {
		s.logger.Warn("vault balance unavailable", append(logging.ContextFields(ctx), zap.Error(err))...)
	} else {
		resp.VaultBalance = &bal
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubmitAllocation(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}

	var req SubmitAllocationRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Debug("invalid allocation request", zap.Error(err))
		return invalidRequest("malformed body")
	}
	recipients, err := auth.ParseIdentities(req.Recipients)
	if err != nil {
		return invalidRequest("recipients: %v", err)
	}

	err = s.tasks.SubmitAllocation(c.Request().Context(), task.SubmitRequest{
		TaskName:   name,
		Recipients: recipients,
		Amounts:    req.Amounts,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClaim(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}

	res, err := s.tasks.Claim(c.Request().Context(), task.ClaimRequest{TaskName: name})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleBalance(c echo.Context) error {
	raw, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	id, err := auth.ParseIdentity(raw)
	if err != nil {
		return invalidRequest("account: %v", err)
	}

	bal, err := s.balances.Balance(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BalanceResponse{Identity: id, Balance: bal})
}

// pathParam returns the unescaped value of a route parameter. The router
// matches on RawPath when the request has one, leaving params escaped.
func pathParam(c echo.Context, key string) (string, error) {
	if c.Request().URL.RawPath == "" {
		return c.Param(key), nil
	}
	v, err := url.PathUnescape(c.Param(key))
	if err != nil {
		return "", invalidRequest("%s: %v", key, err)
	}
	return v, nil
}
