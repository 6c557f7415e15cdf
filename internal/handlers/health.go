package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// serviceName is reported by the health and root endpoints.
const serviceName = "groceryplan-api"

// Health reports that the process is serving requests.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

// Root describes the API.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Grocery Plan API",
		"version": "1.0.0",
	})
}
