// Package auth, as part of the authentication module.
// This file, `handlers.go`, turns HTTP requests into AuthService calls and
// AuthService results into JSON responses.
package auth

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Handlers wraps the AuthService to provide HTTP handlers.
type Handlers struct {
	service  *AuthService
	validate *validator.Validate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *AuthService) *Handlers {
	return &Handlers{service: service, validate: NewValidator()}
}

// HandleSignup godoc
// @Summary User signup
// @Description Registers a new user and returns a bearer token for it.
// @Tags Auth
// @Accept json
// @Produce json
// @Param signupBody body auth.SignupRequest true "Signup details"
// @Success 200 {object} auth.AuthResponse "User created, token issued"
// @Failure 400 {object} apperror.ErrorResponse "Invalid input or user already exists"
// @Failure 500 {object} apperror.ErrorResponse "Internal Server Error"
// @Router /auth/signup [post]
func (h *Handlers) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := DecodeJSON(w, r, h.validate, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		resp, err := h.service.Signup(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleLogin godoc
// @Summary User login
// @Description Authenticates a user by email and password and returns a bearer token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param loginBody body auth.LoginRequest true "Login credentials"
// @Success 200 {object} auth.AuthResponse "Login successful"
// @Failure 400 {object} apperror.ErrorResponse "Invalid input or invalid credentials"
// @Failure 500 {object} apperror.ErrorResponse "Internal Server Error"
// @Router /auth/login [post]
func (h *Handlers) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := DecodeJSON(w, r, h.validate, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		resp, err := h.service.Login(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
