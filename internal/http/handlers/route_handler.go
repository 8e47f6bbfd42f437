// README: Route catalog handlers and the caller's draft cart keyed by route.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"metro/internal/http/middleware"
	"metro/internal/modules/catalog"
	"metro/internal/modules/trip"
	"metro/internal/types"
)

type RouteHandler struct {
	catalog *catalog.Service
	trips   *trip.Service
}

func NewRouteHandler(catalogSvc *catalog.Service, tripSvc *trip.Service) *RouteHandler {
	return &RouteHandler{catalog: catalogSvc, trips: tripSvc}
}

type routeListResponse struct {
	Routes      []catalog.Route `json:"routes"`
	DraftTripID *string         `json:"draft_trip_id"`
	DraftCount  int             `json:"draft_count"`
}

// Search lists active routes and, for signed-in callers, their draft badge.
func (h *RouteHandler) Search(c *gin.Context) {
	routes, err := h.catalog.Search(c.Request.Context(), catalog.SearchFilter{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	if routes == nil {
		routes = []catalog.Route{}
	}
	resp := routeListResponse{Routes: routes}
	draftID, count, err := h.trips.DraftSummary(c.Request.Context(), middleware.CallerActor(c))
	if err != nil {
		writeTripError(c, err)
		return
	}
	if draftID != "" {
		id := string(draftID)
		resp.DraftTripID = &id
		resp.DraftCount = count
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *RouteHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return
	}
	r, err := h.catalog.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type addRouteReq struct {
	Duration *int `json:"duration"`
}

// AddToDraft puts a route into the caller's draft, creating the draft if needed.
func (h *RouteHandler) AddToDraft(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return
	}
	var req addRouteReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	e, err := h.trips.AddRouteToMyDraft(c.Request.Context(), actor, types.ID(id), req.Duration)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toEntryResponse(*e))
}

func (h *RouteHandler) RemoveFromDraft(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return
	}
	draft, err := h.trips.MyDraft(c.Request.Context(), actor)
	if err != nil {
		writeTripError(c, err)
		return
	}
	err = h.trips.RemoveRouteFromDraft(c.Request.Context(), trip.RemoveRouteCommand{
		Actor:   actor,
		TripID:  draft.ID,
		RouteID: types.ID(id),
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateEntryReq struct {
	Order *int  `json:"order"`
	Free  *bool `json:"free"`
}

// UpdateInDraft repositions an entry and/or toggles its free-ride flag.
func (h *RouteHandler) UpdateInDraft(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Anonymous() {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return
	}
	var req updateEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Order == nil && req.Free == nil {
		writeError(c, http.StatusBadRequest, "order or free is required")
		return
	}
	ctx := c.Request.Context()
	draft, err := h.trips.MyDraft(ctx, actor)
	if err != nil {
		writeTripError(c, err)
		return
	}

	e, err := h.trips.UpdateEntry(ctx, trip.UpdateEntryCommand{
		Actor: actor, TripID: draft.ID, RouteID: types.ID(id), Order: req.Order, Free: req.Free,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toEntryResponse(*e))
}
