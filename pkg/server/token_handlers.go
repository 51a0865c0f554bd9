package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hypervisual/banklink/pkg/token"
)

// envelope is the response shape shared by all endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// StoreTokenRequest seeds a token out of band, typically after an OAuth2
// authorization completed elsewhere.
type StoreTokenRequest struct {
	Company      string `json:"company"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// RefreshRequest names the company to force-refresh.
type RefreshRequest struct {
	Company string `json:"company"`
}

func companyOrDefault(id string) string {
	if id == "" {
		return defaultCompany
	}
	return id
}

// tokenStatus handles GET /api/revolut/token-status?company=
func (s *Server) tokenStatus(c echo.Context) error {
	company := companyOrDefault(c.QueryParam("company"))
	return c.JSON(http.StatusOK, envelope{Success: true, Data: s.tokens.TokenStatus(company)})
}

// allTokenStatuses handles GET /api/revolut/token-status/all
func (s *Server) allTokenStatuses(c echo.Context) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: s.tokens.AllTokenStatuses()})
}

// forceRefresh handles POST /api/revolut/refresh
func (s *Server) forceRefresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
	}
	company := companyOrDefault(req.Company)

	grant, err := s.tokens.ForceRefresh(c.Request().Context(), company)
	if err != nil {
		return c.JSON(http.StatusBadGateway, envelope{
			Success: false,
			Error:   err.Error(),
			Message: fmt.Sprintf("Token refresh failed for %s. Please re-authenticate via Revolut OAuth2.", company),
		})
	}

	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    grant,
		Message: fmt.Sprintf("Token refreshed for %s", company),
	})
}

// storeToken handles POST /api/revolut/token
func (s *Server) storeToken(c echo.Context) error {
	var req StoreTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
	}
	if req.AccessToken == "" {
		return c.JSON(http.StatusBadRequest, envelope{Success: false, Error: "access_token is required"})
	}
	company := companyOrDefault(req.Company)

	err := s.tokens.StoreToken(c.Request().Context(), company, token.Data{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresIn:    req.ExpiresIn,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Token stored for %s", company),
	})
}

// health handles GET /health
func (s *Server) health(c echo.Context) error {
	status := map[string]any{"status": "ok"}
	if s.durable == nil {
		status["durable_tier"] = "disabled"
	} else if err := s.durable.Ping(c.Request().Context()); err != nil {
		status["durable_tier"] = "unreachable"
	} else {
		status["durable_tier"] = "ok"
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: status})
}
