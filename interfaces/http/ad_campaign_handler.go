package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/usecase"
)

type IAdCampaignHandler interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Pause(c *gin.Context)
	Resume(c *gin.Context)
	Complete(c *gin.Context)
}

type AdCampaignHandler struct {
	campaigns usecase.IAdCampaignUsecase
}

func NewAdCampaignHandler(campaigns usecase.IAdCampaignUsecase) IAdCampaignHandler {
	return &AdCampaignHandler{campaigns: campaigns}
}

func (h *AdCampaignHandler) Create(c *gin.Context) {
	var req dto.CreateAdCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), c.GetString("owner_id"), usecase.CreateAdCampaign{
		Network:        model.Network(req.Network),
		Name:           req.Name,
		ContentItemIDs: req.ContentItemIDs,
		Content:        req.Content,
		TotalBudget:    req.TotalBudget,
		DailyBudget:    req.DailyBudget,
		Audience:       req.Audience,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (h *AdCampaignHandler) List(c *gin.Context) {
	list, err := h.campaigns.List(c.Request.Context(), c.GetString("owner_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*model.AdCampaign{}
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

func (h *AdCampaignHandler) Get(c *gin.Context) {
	campaign, err := h.campaigns.Get(c.Request.Context(), c.GetString("owner_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *AdCampaignHandler) Pause(c *gin.Context) { h.transition(c, h.campaigns.Pause) }

func (h *AdCampaignHandler) Resume(c *gin.Context) { h.transition(c, h.campaigns.Resume) }

func (h *AdCampaignHandler) Complete(c *gin.Context) { h.transition(c, h.campaigns.Complete) }

func (h *AdCampaignHandler) transition(c *gin.Context, fn func(ctx context.Context, ownerID, id string) (*model.AdCampaign, error)) {
	campaign, err := fn(c.Request.Context(), c.GetString("owner_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}
