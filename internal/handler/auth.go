package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/config"
    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
    "github.com/blueoxgroup/blueox-ride/internal/utils"
)

// AuthHandler owns the register / login / refresh / logout flows.
type AuthHandler struct {
    Users  *repository.UserRepo
    Tokens *repository.TokenRepo
    Cfg    config.Config
}

type registerRequest struct {
    Email    string `json:"email"`
    Password string `json:"password"`
    FullName string `json:"full_name"`
    Phone    string `json:"phone"`
    Role     string `json:"role"`
}

type loginRequest struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type refreshRequest struct {
    RefreshToken string `json:"refresh_token"`
}

// Register creates a new account. Drivers must supply a mobile money
// number up front because ride cancellations pay refunds out to it.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }

    req.Email = strings.TrimSpace(strings.ToLower(req.Email))
    req.FullName = strings.TrimSpace(req.FullName)
    req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

    if req.Email == "" || !strings.Contains(req.Email, "@") {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email is required"})
    }
    if len(req.Password) < 8 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
    }
    if req.FullName == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name is required"})
    }
    if req.Role != model.RoleDriver && req.Role != model.RolePassenger {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be DRIVER or PASSENGER"})
    }

    phone := ""
    if req.Phone != "" {
        normalized, err := utils.NormalizeMsisdn(req.Phone)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is not a valid mobile money number"})
        }
        phone = normalized
    }
    if req.Role == model.RoleDriver && phone == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "drivers must register a mobile money number"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    id, err := h.Users.Create(ctx, req.Email, req.Password, req.FullName, phone, req.Role, h.Cfg.BcryptCost)
    if err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "email is already registered"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create user"})
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "id":        id,
        "email":     req.Email,
        "full_name": req.FullName,
        "role":      req.Role,
    })
}

// Login verifies credentials and issues an access + refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Email = strings.TrimSpace(strings.ToLower(req.Email))
    if req.Email == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    user, err := h.Users.GetByEmail(ctx, req.Email)
    if err != nil {
        // Same response for unknown email and bad password.
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    if !utils.VerifyPassword(user.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.ID, user.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue access token"})
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue refresh token"})
    }
    if err := h.Tokens.StoreRefresh(ctx, user.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to persist refresh token"})
    }

    return c.JSON(http.StatusOK, echo.Map{
        "access_token":  access.Token,
        "expires_at":    access.Exp.Format(time.RFC3339),
        "refresh_token": refresh.Raw,
        "role":          user.Role,
    })
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is returned, so a replayed stolen token fails.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshRequest
    if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    hash := utils.HashRefreshRaw(req.RefreshToken)
    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired refresh token"})
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to rotate refresh token"})
    }

    user, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account no longer exists"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.ID, user.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue access token"})
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue refresh token"})
    }
    if err := h.Tokens.StoreRefresh(ctx, user.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to persist refresh token"})
    }

    return c.JSON(http.StatusOK, echo.Map{
        "access_token":  access.Token,
        "expires_at":    access.Exp.Format(time.RFC3339),
        "refresh_token": refresh.Raw,
    })
}

// RefreshAccess issues a new access token against a still-valid
// refresh token without rotating it. Clients use it for silent
// renewal; Refresh is the rotating variant.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    var req refreshRequest
    if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(req.RefreshToken))
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired refresh token"})
    }
    user, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account no longer exists"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.ID, user.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue access token"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access_token": access.Token,
        "expires_at":   access.Exp.Format(time.RFC3339),
    })
}

// Logout revokes the presented refresh token. When the body carries no
// token, every refresh token of the authenticated user is revoked
// instead, which logs the account out everywhere.
func (h *AuthHandler) Logout(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    var req refreshRequest
    if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
        if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(req.RefreshToken)); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to revoke refresh token"})
        }
        return c.JSON(http.StatusOK, echo.Map{"success": true})
    }

    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    if err := h.Tokens.RevokeAllForUser(ctx, userID); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to revoke sessions"})
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    user, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":        user.ID,
        "email":     user.Email,
        "full_name": user.FullName,
        "phone":     user.Phone,
        "role":      user.Role,
        "joined_at": user.CreatedAt.UTC().Format(time.RFC3339),
    })
}

// UpdatePhone lets a user change their mobile money payout number.
func (h *AuthHandler) UpdatePhone(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }

    var req struct {
        Phone string `json:"phone"`
    }
    if err := c.Bind(&req); err != nil || req.Phone == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required"})
    }
    normalized, err := utils.NormalizeMsisdn(req.Phone)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is not a valid mobile money number"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Users.UpdatePhone(ctx, userID, normalized); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update phone"})
    }
    return c.JSON(http.StatusOK, echo.Map{"phone": normalized})
}
