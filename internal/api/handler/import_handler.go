package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
	"github.com/openlms/provisioner/internal/core/service"
	"github.com/openlms/provisioner/internal/csvio"
)

// keepaliveInterval is how long the stream waits for a real event before
// emitting an SSE comment, so intermediary proxies do not treat the
// connection as stalled.
const keepaliveInterval = 25 * time.Second

// BatchCoordinator is the interface the handler uses to submit and observe
// batches.
type BatchCoordinator interface {
	Start(rows []domain.Record) (string, error)
	Job(id string) (*domain.Job, error)
	Result(id string) ([]domain.Record, bool, error)
}

// ImportHandler handles the roster import surface: preview, start, stream,
// result, download, and the connectivity probe.
type ImportHandler struct {
	coordinator BatchCoordinator
	dir         ports.Directory
	roleID      int
}

func NewImportHandler(coordinator BatchCoordinator, dir ports.Directory, roleID int) *ImportHandler {
	return &ImportHandler{coordinator: coordinator, dir: dir, roleID: roleID}
}

// Preview handles POST /api/import/preview — parses an uploaded CSV roster
// and returns the normalized rows without touching the remote system.
func (h *ImportHandler) Preview(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer f.Close()

	raw, err := csvio.ReadRoster(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid CSV: %v", err))
	}

	records, err := service.NormalizeBatch(raw)
	if err != nil {
		return err // *domain.SchemaError → 400 via the central error handler
	}

	return c.JSON(http.StatusOK, previewResponse{
		Rows:  fromRecords(records),
		Count: len(records),
	})
}

// Start handles POST /api/import/start — accepts canonical rows and launches
// a background job, returning its id immediately.
func (h *ImportHandler) Start(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return domain.ErrEmptyBatch
	}

	jobID, err := h.coordinator.Start(toRecords(req.Rows))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, startedResponse{JobID: jobID})
}

// Stream handles GET /api/import/stream/:id — the SSE progress stream.
// The subscriber dropping the connection does not stop the job.
func (h *ImportHandler) Stream(c echo.Context) error {
	job, err := h.coordinator.Job(c.Param("id"))
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no") // nginx: do not buffer this response
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "retry: 1500\n\n")
	if err := writeSSE(w, domain.Event{Type: domain.EventHello, Data: helloPayload{JobID: job.ID}}); err != nil {
		return nil
	}
	w.Flush()

	ctx := c.Request().Context()
	for {
		ev, ok := job.Pop(ctx, keepaliveInterval)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprint(w, ": keepalive\n\n")
			w.Flush()
			continue
		}

		if err := writeSSE(w, ev); err != nil {
			return nil
		}
		w.Flush()

		if ev.Type == domain.EventDone {
			return nil
		}
	}
}

// Result handles GET /api/import/result/:id — the final row set, available
// indefinitely once the job is done.
func (h *ImportHandler) Result(c echo.Context) error {
	rows, done, err := h.coordinator.Result(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resultResponse{
		Rows: fromRecords(rows),
		Done: done,
	})
}

// Download handles POST /api/import/download — renders the submitted rows as
// a spreadsheet-compatible CSV attachment.
func (h *ImportHandler) Download(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return domain.ErrEmptyBatch
	}

	doc, err := csvio.WriteRoster(toRecords(req.Rows))
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("roster_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", doc)
}

// Ping handles GET /api/ping — the remote connectivity probe. Missing
// endpoint configuration surfaces here as a clear 400, not a startup crash.
func (h *ImportHandler) Ping(c echo.Context) error {
	info, err := h.dir.Probe(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pingResponse{
		OK:       true,
		SiteName: info.SiteName,
		Release:  info.Release,
		RoleID:   h.roleID,
	})
}

func writeSSE(w io.Writer, ev domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
