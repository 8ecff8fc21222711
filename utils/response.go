package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StandardResponse represents the standard API response structure. RequestID
// echoes X-Request-ID so support can find the matching log lines.
type StandardResponse struct {
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Pagination interface{} `json:"pagination,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
}

func respond(c *gin.Context, code int, resp StandardResponse) {
	resp.RequestID = c.GetString(RequestIDKey)
	c.JSON(code, resp)
}

// Success sends a standardized success response
func Success(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, StandardResponse{Status: "success", Message: message, Data: data})
}

// Created sends a standardized created response (201)
func Created(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusCreated, StandardResponse{Status: "success", Message: message, Data: data})
}

// SuccessWithPagination sends a page of data with its pagination metadata
func SuccessWithPagination(c *gin.Context, message string, data interface{}, total int64, p *Pagination) {
	respond(c, http.StatusOK, StandardResponse{
		Status:     "success",
		Message:    message,
		Data:       data,
		Pagination: p.Meta(total),
	})
}

// Error sends a standardized error response
func Error(c *gin.Context, statusCode int, message string, err interface{}) {
	response := StandardResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		response.Data = gin.H{"error": err}
	}
	respond(c, statusCode, response)
}

// AbortWithAppError writes err with its status code and stops the handler chain.
// Server-side failures are logged with their cause, which is never sent to the client.
func AbortWithAppError(c *gin.Context, err error) {
	appErr := AsAppError(err)
	if appErr.Code >= http.StatusInternalServerError && appErr.Err != nil {
		LogError("%s %s failed: %v", c.Request.Method, c.FullPath(), appErr.Err)
	}
	Error(c, appErr.Code, appErr.Message, appErr.Details)
	c.Abort()
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, message string, err interface{}) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

// InternalServerError sends a 500 Internal Server Error response
func InternalServerError(c *gin.Context, message string, err interface{}) {
	Error(c, http.StatusInternalServerError, message, err)
}

// Conflict sends a 409 Conflict response
func Conflict(c *gin.Context, message string, err interface{}) {
	Error(c, http.StatusConflict, message, err)
}
