package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"callpilot/models"
	"callpilot/utils"
)

// GetCallMode reports the server-wide default call mode that "auto" campaigns
// resolve to.
func GetCallMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"call_mode": ModeDefault.Get()})
}

// SetCallMode overrides the server-wide default call mode. The default must
// be concrete; "auto" is only meaningful per campaign.
func SetCallMode(c *gin.Context) {
	var body struct {
		CallMode models.CallMode `json:"call_mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid call mode request", err.Error())
		return
	}
	if err := ModeDefault.Set(body.CallMode); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid call mode", err.Error())
		return
	}

	utils.GetLogger().Info("Default call mode changed", zap.String("call_mode", string(body.CallMode)))
	c.JSON(http.StatusOK, gin.H{"call_mode": ModeDefault.Get()})
}
