package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dropwire/dropwire/internal/api/dto/common"
)

// ANSI color codes for terminal request-error logging.
const (
	blue   = "\033[97;44m"
	yellow = "\033[90;43m"
	red    = "\033[97;41m"
	cyan   = "\033[97;46m"
	reset  = "\033[0m"
)

// HandleAPIError is the single error-response path for every handler:
// it logs the failure (colorized, gated by LOG_REQUESTS) and writes
// the common.APIResponse error envelope, hiding error details when
// ENV is production.
func HandleAPIError(c *gin.Context, err error, status int, code common.ErrorCode, message string) {
	if os.Getenv("LOG_REQUESTS") == "true" {
		path := c.Request.URL.Path
		method := c.Request.Method
		clientIP := GetRealIP(c)

		statusFormatted := fmt.Sprintf("%s %3d %s", red, status, reset)

		methodColor := blue
		switch method {
		case "POST":
			methodColor = cyan
		case "PUT", "PATCH":
			methodColor = yellow
		case "DELETE":
			methodColor = red
		}
		methodFormatted := fmt.Sprintf("%s %s %s", methodColor, method, reset)

		fmt.Printf("[dropwire-api-error] %s | %s | %15s | %-17s %s | %s: %s\n",
			time.Now().Format("2006/01/02 - 15:04:05"),
			statusFormatted, clientIP, methodFormatted, path, message, err.Error())
	}

	var details interface{}
	if os.Getenv("ENV") != "production" {
		details = err.Error()
	}

	c.JSON(status, common.NewErrorResponse(code, message, details))
}
