package webapi

import (
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// validator caches struct metadata and is safe for concurrent use; one
// instance serves all requests.
var validate = validator.New()

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`     // A URI reference that identifies the problem type
	Title    string `json:"title"`              // Short, human-readable summary
	Status   int    `json:"status"`             // HTTP status code
	Detail   string `json:"detail,omitempty"`   // Human-readable explanation
	Instance string `json:"instance,omitempty"` // URI reference that identifies the specific occurrence
	Code     string `json:"code,omitempty"`     // Machine-readable provider error code
	Errors   any    `json:"errors,omitempty"`   // Optional: additional error details
}

// ErrorResponseJSON returns a response following RFC 9457 Problem Details.
func ErrorResponseJSON(
	c *fiber.Ctx,
	status int,
	title string,
	detail any,
) error {
	pd := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
	}
	if detail != nil {
		if s, ok := detail.(string); ok {
			pd.Detail = s
		} else {
			pd.Errors = detail
		}
	}
	pd.Instance = c.OriginalURL()
	c.Set(fiber.HeaderContentType, "application/problem+json")

	return c.Status(status).JSON(pd)
}

// ProviderErrorJSON is ErrorResponseJSON specialized for provider failures:
// it surfaces the machine-readable error code alongside the problem document.
func ProviderErrorJSON(c *fiber.Ctx, err error) error {
	status := ErrorToStatusCode(err)
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    statusTitle(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: c.OriginalURL(),
		Code:     string(domain.CodeOf(err)),
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(pd)
}

// ErrorToStatusCode maps provider error codes to HTTP status codes.
func ErrorToStatusCode(err error) int {
	switch domain.CodeOf(err) {
	case domain.ErrRateLimited:
		return fiber.StatusTooManyRequests
	case domain.ErrCircuitOpen, domain.ErrAllProvidersFailed:
		return fiber.StatusServiceUnavailable
	case domain.ErrProviderFailed, domain.ErrInvalidResponse:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func statusTitle(status int) string {
	switch status {
	case fiber.StatusTooManyRequests:
		return "Too Many Requests"
	case fiber.StatusServiceUnavailable:
		return "Service Unavailable"
	case fiber.StatusBadGateway:
		return "Bad Gateway"
	default:
		return "Internal Server Error"
	}
}

// BindQueryAndValidate parses the query string into T and validates it with
// go-playground/validator. On failure it writes the error response and
// returns a non-nil error so the handler can just return.
func BindQueryAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.QueryParser(&input); err != nil {
		ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid query parameters", err.Error())
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		ErrorResponseJSON(c, fiber.StatusBadRequest, "Validation failed", err.Error())
		return nil, err
	}
	return &input, nil
}
