package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-api/models"
)

func respondData(c *gin.Context, status int, message string, data any) {
	c.JSON(status, models.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, models.APIResponse{
		Success: false,
		Message: message,
	})
}

func respondInternal(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, models.APIResponse{
		Success: false,
		Message: "Internal server error",
		Error:   err.Error(),
	})
}
