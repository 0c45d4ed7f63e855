package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/studver/matsel-api/internal/middleware"
	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) service.Actor {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}
	}
	return service.Actor{
		UserID:    claims.UserID,
		Role:      claims.Role,
		TeacherID: claims.TeacherID,
	}
}
