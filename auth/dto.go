package auth

import "time"

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=100" example:"A"`
	Email    string `json:"email" validate:"required,email,max=254" example:"a@x.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"secret123"`
}

// LoginRequest is the body of POST /api/auth/login.
// Only presence is validated here: any other check would give callers a way to
// tell login failures apart.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254" example:"a@x.com"`
	Password string `json:"password" validate:"required,max=72" example:"secret123"`
}

// AuthResponse is returned by both signup and login.
type AuthResponse struct {
	Token     string     `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      PublicUser `json:"user"`
}
