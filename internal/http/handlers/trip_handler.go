// README: Trip handlers for the draft, listing, detail, lifecycle and printable summary.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"metro/internal/http/middleware"
	"metro/internal/modules/trip"
	"metro/internal/types"
)

const dateLayout = "2006-01-02"

type TripHandler struct {
	trips    *trip.Service
	currency string
	log      *zap.Logger
}

func NewTripHandler(svc *trip.Service, currency string, log *zap.Logger) *TripHandler {
	return &TripHandler{trips: svc, currency: currency, log: log}
}

// tripRequest runs the shared auth and id checks; ok is false when a response was written.
func tripRequest(c *gin.Context) (types.Actor, types.ID, bool) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return actor, "", false
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return actor, "", false
	}
	return actor, types.ID(id), true
}

func (h *TripHandler) Draft(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	t, err := h.trips.CreateOrGetDraft(c.Request.Context(), actor)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) List(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	f, err := parseListFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	trips, err := h.trips.List(c.Request.Context(), actor, f)
	if err != nil {
		writeTripError(c, err)
		return
	}
	out := make([]tripResponse, 0, len(trips))
	for i := range trips {
		out = append(out, toTripResponse(&trips[i]))
	}
	writeJSON(c, http.StatusOK, out)
}

func parseListFilter(c *gin.Context) (trip.ListFilter, error) {
	var f trip.ListFilter
	if s := c.Query("status"); s != "" {
		f.Status = trip.Status(strings.ToUpper(s))
	}
	if s := c.Query("start_date"); s != "" {
		from, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if s := c.Query("end_date"); s != "" {
		day, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
		// the whole end day is included
		to := day.Add(24*time.Hour - time.Nanosecond)
		f.To = &to
	}
	return f, nil
}

func (h *TripHandler) Get(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	t, err := h.trips.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeTripError(c, err)
		return
	}
	resp := toTripResponse(t)
	if q, err := trip.Quote(t, h.currency); err != nil {
		h.log.Warn("fare quote failed", zap.String("trip_id", string(id)), zap.Error(err))
	} else {
		resp.Quote = &q
	}
	writeJSON(c, http.StatusOK, resp)
}

type updateTripReq struct {
	Owner       *string `json:"owner"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *TripHandler) Update(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	var req updateTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == nil && req.Name == nil && req.Description == nil {
		writeError(c, http.StatusBadRequest, "nothing to update")
		return
	}
	t, err := h.trips.UpdateDraft(c.Request.Context(), trip.UpdateDraftCommand{
		Actor:  actor,
		TripID: id,
		Patch:  trip.DraftPatch{Owner: req.Owner, Name: req.Name, Description: req.Description},
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) Delete(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	if err := h.trips.DeleteTrip(c.Request.Context(), trip.DeleteCommand{Actor: actor, TripID: id}); err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TripHandler) Form(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	t, err := h.trips.FormTrip(c.Request.Context(), trip.FormCommand{Actor: actor, TripID: id})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

type moderateReq struct {
	Action string `json:"action"`
}

func (h *TripHandler) Moderate(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	var req moderateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Moderate(c.Request.Context(), trip.ModerateCommand{
		Actor:  actor,
		TripID: id,
		Action: trip.Action(req.Action),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTripResponse(t))
}

func (h *TripHandler) SummaryPDF(c *gin.Context) {
	actor, id, ok := tripRequest(c)
	if !ok {
		return
	}
	pdf, err := h.trips.SummaryPDF(c.Request.Context(), actor, id)
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="trip-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
