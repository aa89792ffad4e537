package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/ayanobu/nicofetch/internal/app"
)

type StatusController struct {
	App *app.Context
}

// HandleStatus reports the in-flight download, if any.
func (ctrl *StatusController) HandleStatus(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Status.Snapshot())
}

// HandleHistory returns recent download records, newest first.
func (ctrl *StatusController) HandleHistory(c *echo.Context) error {
	if ctrl.App.History == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history store disabled"})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	records, err := ctrl.App.History.Recent(c.Request().Context(), limit)
	if err != nil {
		ctrl.App.Logger.Error("history query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "history query failed"})
	}

	out := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entry := historyEntry{
			ID:        r.ID,
			VideoID:   r.VideoID,
			Title:     r.Title,
			Path:      r.Path,
			Bytes:     r.Bytes,
			Status:    string(r.Status),
			CreatedAt: r.CreatedAt,
		}
		if r.CompletedAt != nil {
			entry.CompletedAt = r.CompletedAt
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, out)
}
