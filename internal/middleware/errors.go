package middleware

import (
	"github.com/gin-gonic/gin"
)

type errorData struct {
	Status int `json:"status"`
}

// ErrorBody is the JSON error envelope of the REST API.
type ErrorBody struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Data    errorData `json:"data"`
}

func AbortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:    code,
		Message: message,
		Data:    errorData{Status: status},
	})
}
