package entity

type AuthLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthLoginResponse is returned by /login. The refresh token travels in a cookie.
type AuthLoginResponse struct {
	Employee             UserSummary `json:"employee"`
	AccessToken          string      `json:"accessToken"`
	AccessTokenExpiresIn int64       `json:"accessTokenExpiresIn"`
}

type AuthRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthRefreshResponse struct {
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresIn int64  `json:"accessTokenExpiresIn"`
}

type AuthLogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthRegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type ResetPasswordRequest struct {
	UserID      string `json:"userId" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// MeResponse echoes the identity carried by the access token.
type MeResponse struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	Role        string              `json:"role"`
	Permissions map[string][]string `json:"permissions"`
}
