package rbac

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// fiber Locals keys
const (
	// UserIDLocal holds the authenticated user's ID, set by the auth layer.
	UserIDLocal = "user_id"
	// ResultLocal holds the CheckResult of an allowed request.
	ResultLocal = "rbac_result"
)

// TargetFunc extracts the target of a check from a request.
type TargetFunc func(c *fiber.Ctx) (CheckContext, error)

// TargetFromParam resolves the target user from a route parameter.
func (s *RBACService) TargetFromParam(param string) TargetFunc {
	return func(c *fiber.Ctx) (CheckContext, error) {
		id := c.Params(param)
		if id == "" {
			return CheckContext{}, nil
		}
		return s.TargetContext(c.UserContext(), id)
	}
}

// RequirePermission provides Fiber middleware for permission checking. code
// is parsed here, so a malformed code panics at route setup. Denials answer
// with a generic 403; the reason only reaches the log.
func (s *RBACService) RequirePermission(code string, target TargetFunc) fiber.Handler {
	p := MustParsePermission(code)
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(UserIDLocal).(string)
		if !ok || userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		var cctx CheckContext
		if target != nil {
			var err error
			if cctx, err = target(c); err != nil {
				s.logger.Error("resolve check target", zap.String("permission", code), zap.Error(err))
				return fiber.NewError(fiber.StatusInternalServerError, "internal error")
			}
		}

		res, err := s.Check(c.UserContext(), userID, p, cctx)
		if err != nil {
			s.logger.Error("permission check failed",
				zap.String("user_id", userID), zap.String("permission", code), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "internal error")
		}
		if !res.Allowed {
			s.logger.Info("access denied",
				zap.String("user_id", userID),
				zap.String("permission", code),
				zap.String("target_user_id", cctx.TargetUserID),
				zap.String("reason", res.Reason))
			return fiber.NewError(fiber.StatusForbidden, "access denied")
		}
		c.Locals(ResultLocal, res)
		return c.Next()
	}
}
