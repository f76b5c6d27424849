package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const localsPhone = "phone"

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			// browsers cannot set headers on websocket upgrades
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		if sub, err := token.Claims.GetSubject(); err == nil {
			c.Locals(localsPhone, sub)
		}
		return c.Next()
	}
}

func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = statusFor(err)
			}
		}
		s.deps.Metrics.HTTPRequest(c.Method(), strconv.Itoa(status))
		return err
	}
}

// issueToken signs a local API token for the patient's phone number
func (s *Server) issueToken(phone string) (string, time.Time, error) {
	ttl := time.Duration(s.config.Security.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	expires := time.Now().Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": phone,
		"iat": time.Now().Unix(),
		"exp": expires.Unix(),
	})

	signed, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrBadRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrNoSession):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperrors.ErrNoUser), errors.Is(err, apperrors.ErrNoContacts):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrRemoteUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrRemoteStatus), errors.Is(err, apperrors.ErrRemoteDecode):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// errorHandler renders handler errors as {"error", "code"}
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	if apperrors.IsAppError(err) {
		body["code"] = apperrors.GetCode(err)
	}
	return c.Status(status).JSON(body)
}
