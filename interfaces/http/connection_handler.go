package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
	"social-publisher/usecase"
)

type IConnectionHandler interface {
	Authorize(c *gin.Context)
	Callback(c *gin.Context)
	List(c *gin.Context)
	Delete(c *gin.Context)
}

type ConnectionHandler struct {
	connections usecase.IConnectionUsecase
	links       configuration.Links
}

func NewConnectionHandler(connections usecase.IConnectionUsecase, links configuration.Links) IConnectionHandler {
	return &ConnectionHandler{connections: connections, links: links}
}

func (h *ConnectionHandler) Authorize(c *gin.Context) {
	network, ok := networkParam(c)
	if !ok {
		return
	}
	authURL, state, err := h.connections.BeginLink(c.Request.Context(), c.GetString("owner_id"), network)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AuthorizeResponse{AuthURL: authURL, State: state})
}

// Callback is hit by the network's redirect, so it always answers with a redirect
// to the presentation layer.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	network, ok := model.ParseNetwork(c.Param("network"))
	if !ok {
		network = model.Network(c.Param("network"))
	}
	conn, err := h.connections.CompleteLink(c.Request.Context(), usecase.CallbackParams{
		Network: network,
		Code:    c.Query("code"),
		State:   c.Query("state"),
		Error:   c.Query("error"),
		OwnerID: c.GetString("owner_id"),
	})
	if err != nil {
		code := "link_failed"
		var le *model.LinkError
		if errors.As(err, &le) {
			code = le.Code
		}
		logger.GetLogger().WithError(err).WithField("network", c.Param("network")).Warn("OAuth callback failed")
		c.Redirect(http.StatusFound, withQuery(h.links.ErrorURL, "error", code))
		return
	}
	c.Redirect(http.StatusFound, withQuery(h.links.SuccessURL, "network", string(conn.Network)))
}

func (h *ConnectionHandler) List(c *gin.Context) {
	list, err := h.connections.ListConnections(c.Request.Context(), c.GetString("owner_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*model.Connection{}
	}
	c.JSON(http.StatusOK, gin.H{"connections": list})
}

// Delete disconnects the network; ?purge=true also removes the stored history.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	network, ok := networkParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owner := c.GetString("owner_id")
	if c.Query("purge") == "true" {
		n, err := h.connections.Purge(ctx, owner, network)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"network": network, "purged": n})
		return
	}
	if err := h.connections.Disconnect(ctx, owner, network); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "/?" + url.Values{key: {value}}.Encode()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
