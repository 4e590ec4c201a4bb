package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
	syncpkg "github.com/kimhsiao/resellerdesk/backend/internal/sync"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/scheduler"
)

// decodeJSON reads the request body keeping numbers exact.
func decodeJSON(c echo.Context, v interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err)
	}
	return nil
}

func tableParam(c echo.Context) (models.Table, error) {
	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidTable, "invalid table", err)
	}
	return table, nil
}

// health handles GET /api/health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	models.SyncState
	Scheduler *scheduler.SchedulerStatus `json:"scheduler,omitempty"`
}

// status handles GET /api/status
func (s *Server) status(c echo.Context) error {
	state, err := s.engine.State(c.Request().Context())
	if err != nil {
		return err
	}
	resp := statusResponse{SyncState: state}
	if s.scheduler != nil {
		st := s.scheduler.GetStatus()
		resp.Scheduler = &st
	}
	return c.JSON(http.StatusOK, resp)
}

// enqueue handles POST /api/mutations
func (s *Server) enqueue(c echo.Context) error {
	var request struct {
		Table     string                 `json:"table"`
		Operation string                 `json:"operation"`
		Payload   map[string]interface{} `json:"payload"`
	}
	if err := decodeJSON(c, &request); err != nil {
		return err
	}
	if request.Payload == nil {
		return apperrors.New(apperrors.ErrInvalid, "payload is required")
	}

	id, err := s.engine.Enqueue(c.Request().Context(),
		models.Table(request.Table), models.Operation(request.Operation), request.Payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// listQueue handles GET /api/queue
func (s *Server) listQueue(c echo.Context) error {
	pending, err := s.engine.Pending(c.Request().Context())
	if err != nil {
		return err
	}
	if pending == nil {
		pending = []*models.PendingMutation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": pending,
		"total": len(pending),
	})
}

// getQueued handles GET /api/queue/:id
func (s *Server) getQueued(c echo.Context) error {
	m, err := s.engine.PendingByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// forceSync handles POST /api/sync
func (s *Server) forceSync(c echo.Context) error {
	var (
		result *syncpkg.SyncResult
		err    error
	)
	if s.scheduler != nil {
		result, err = s.scheduler.ForceSync(c.Request().Context())
	} else {
		result, err = s.engine.ForceSync(c.Request().Context())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"result": result})
}

// readCache handles GET /api/cache/:table
func (s *Server) readCache(c echo.Context) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	records, err := s.engine.GetCached(c.Request().Context(), table)
	if err != nil {
		return err
	}

	if s.revealing(c) {
		for i, r := range records {
			opened, err := s.opener.Open(r)
			if err != nil {
				return err
			}
			records[i] = opened
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"table":   table,
		"records": records,
	})
}

// readCachedRecord handles GET /api/cache/:table/:id
func (s *Server) readCachedRecord(c echo.Context) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	record, err := s.engine.GetCachedRecord(c.Request().Context(), table, c.Param("id"))
	if err != nil {
		return err
	}
	if s.revealing(c) {
		if record, err = s.opener.Open(record); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"table":  table,
		"record": record,
	})
}

func (s *Server) revealing(c echo.Context) bool {
	reveal, _ := strconv.ParseBool(c.QueryParam("reveal"))
	return reveal && s.opener != nil
}

// replaceCache handles PUT /api/cache/:table
func (s *Server) replaceCache(c echo.Context) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	var request struct {
		Records []map[string]interface{} `json:"records"`
	}
	if err := decodeJSON(c, &request); err != nil {
		return err
	}
	if request.Records == nil {
		return apperrors.New(apperrors.ErrInvalid, "records is required")
	}

	if err := s.engine.RefreshCache(c.Request().Context(), table, request.Records); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"table": table,
		"count": len(request.Records),
	})
}

// refreshCache handles POST /api/cache/:table/refresh
func (s *Server) refreshCache(c echo.Context) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	n, err := s.engine.FetchTable(c.Request().Context(), table)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"table": table,
		"count": n,
	})
}

// setConnectivity handles POST /api/connectivity
func (s *Server) setConnectivity(c echo.Context) error {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := decodeJSON(c, &request); err != nil {
		return err
	}
	if request.Online == nil {
		return apperrors.New(apperrors.ErrInvalid, "online is required")
	}

	s.engine.SetOnline(*request.Online)
	return c.JSON(http.StatusOK, map[string]bool{"online": *request.Online})
}
