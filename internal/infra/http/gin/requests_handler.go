package ginserver

import (
	"context"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentsync/internal/app/handlers/actions"
	"rentsync/internal/app/handlers/views"
	"rentsync/internal/app/queries"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/wire"
)

type RequestsHandler struct {
	Queries queries.Bus
	Actions actions.Dispatcher
}

type requestCollection struct {
	Items []wire.OutRequest `json:"items"`
}

func (h RequestsHandler) List(c *gin.Context) {
	result, err := queries.Ask[views.ListRequestsQuery, views.RequestCollection](c.Request.Context(), h.Queries, views.ListRequestsQuery{})
	if err != nil {
		respondError(c, err)
		return
	}
	out := requestCollection{Items: make([]wire.OutRequest, 0, len(result.Items))}
	for _, r := range result.Items {
		out.Items = append(out.Items, wire.FromDomain(r))
	}
	c.JSON(http.StatusOK, out)
}

func (h RequestsHandler) Approve(c *gin.Context) {
	h.decide(c, h.Actions.Approve)
}

func (h RequestsHandler) Reject(c *gin.Context) {
	h.decide(c, h.Actions.Reject)
}

func (h RequestsHandler) decide(c *gin.Context, fn func(context.Context, requests.RequestID) (requests.Request, error)) {
	updated, err := fn(c.Request.Context(), requests.RequestID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromDomain(updated))
}

var _ RequestsHTTP = RequestsHandler{}
