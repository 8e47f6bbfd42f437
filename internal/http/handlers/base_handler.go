// README: Base handler utilities (JSON helpers, error mapping, response shapes).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"metro/internal/modules/catalog"
	"metro/internal/modules/pricing"
	"metro/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures IDs are alphanumeric and at most 32 chars (matches current ID generator).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrAlreadyPresent):
		return http.StatusConflict
	case errors.Is(err, trip.ErrRouteInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trip.ErrOutOfRange), errors.Is(err, trip.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, trip.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, trip.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, trip.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeTripError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

type entryResponse struct {
	ID       string         `json:"id"`
	RouteID  string         `json:"route_id"`
	Order    int            `json:"order"`
	Duration int            `json:"duration"`
	Free     bool           `json:"free"`
	Route    *catalog.Route `json:"route,omitempty"`
}

type tripResponse struct {
	ID              string          `json:"id"`
	Status          trip.Status     `json:"status"`
	Owner           string          `json:"owner"`
	UserID          string          `json:"user_id"`
	ModeratorID     *string         `json:"moderator_id,omitempty"`
	ModeratorName   string          `json:"moderator_name,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
	FormedAt        *time.Time      `json:"formed_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	QR              *string         `json:"qr,omitempty"`
	DurationTotal   *int            `json:"duration_total,omitempty"`
	ManuallyOrdered bool            `json:"manually_ordered"`
	Routes          []entryResponse `json:"routes,omitempty"`
	Quote           *pricing.Quote  `json:"quote,omitempty"`
}

func toEntryResponse(e trip.RouteEntry) entryResponse {
	return entryResponse{
		ID:       string(e.ID),
		RouteID:  string(e.RouteID),
		Order:    e.Order,
		Duration: e.Duration,
		Free:     e.Free,
		Route:    e.Route,
	}
}

func toTripResponse(t *trip.Trip) tripResponse {
	out := tripResponse{
		ID:              string(t.ID),
		Status:          t.Status,
		Owner:           t.Owner,
		ModeratorName:   t.ModeratorName,
		UserID:          string(t.UserID),
		Name:            t.Name,
		Description:     t.Description,
		CreatedAt:       t.CreatedAt,
		FormedAt:        t.FormedAt,
		EndedAt:         t.EndedAt,
		QR:              t.QR,
		DurationTotal:   t.DurationTotal,
		ManuallyOrdered: t.ManuallyOrdered,
	}
	if t.ModeratorID != nil {
		m := string(*t.ModeratorID)
		out.ModeratorID = &m
	}
	for _, e := range t.Entries {
		out.Routes = append(out.Routes, toEntryResponse(e))
	}
	return out
}
