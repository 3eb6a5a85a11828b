package httpapi

import (
	"strings"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/server/auth"
	"github.com/gofiber/fiber/v2"
)

const userIDKey = "userID"

// requireAuth accepts "Authorization: Bearer <jwt>" or the bare token in the
// access_token header, and stores the user ID in the request locals.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	accessToken := c.Get(common.AccessTokenHeaderName)
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return writeError(c, s.logger, common.ErrorUnauthorized)
		}
		accessToken = strings.TrimSpace(token)
	}
	if accessToken == "" {
		return writeError(c, s.logger, common.ErrorUnauthorized)
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return writeError(c, s.logger, err)
	}

	c.Locals(userIDKey, userID)
	return c.Next()
}

func currentUser(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
