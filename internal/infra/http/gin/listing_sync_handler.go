package ginserver

import (
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/handlers/views"
	"rentsync/internal/app/listingsync"
	"rentsync/internal/app/queries"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/wire"
)

type ListingSyncHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

type createRequestRequest struct {
	Message    string     `json:"message"`
	MoveInDate *time.Time `json:"moveInDate"`
}

func (h ListingSyncHandler) Get(c *gin.Context) {
	h.snapshot(c, false)
}

func (h ListingSyncHandler) Refresh(c *gin.Context) {
	h.snapshot(c, true)
}

func (h ListingSyncHandler) snapshot(c *gin.Context, refresh bool) {
	query := views.ListingSyncQuery{ListingID: requests.ListingID(c.Param("id")), Refresh: refresh}
	snap, err := queries.Ask[views.ListingSyncQuery, listingsync.Snapshot](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h ListingSyncHandler) CreateRequest(c *gin.Context) {
	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := views.CreateRequestCommand{
		ListingID:  requests.ListingID(c.Param("id")),
		Message:    req.Message,
		MoveInDate: req.MoveInDate,
	}
	created, err := commands.Dispatch[views.CreateRequestCommand, requests.Request](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.FromDomain(created))
}

func (h ListingSyncHandler) Close(c *gin.Context) {
	cmd := views.CloseListingCommand{ListingID: requests.ListingID(c.Param("id"))}
	if _, err := commands.Dispatch[views.CloseListingCommand, bool](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var _ ListingSyncHTTP = ListingSyncHandler{}
