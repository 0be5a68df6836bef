//go:build e2e

package authtest

import (
	"testing"
	"time"

	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TokenFor mints a bearer token the way the surrounding platform would.
// The queue API has no login endpoint of its own.
func TokenFor(t *testing.T, cfg config.Config, role jwt.Role) string {
	t.Helper()

	duration, err := time.ParseDuration(cfg.JWT.Duration)
	require.NoError(t, err, "invalid JWT duration in test config")

	svc := jwt.NewService(cfg.JWT.Secret, duration)
	token, err := svc.GenerateToken(uuid.New(), role)
	require.NoError(t, err, "failed to generate test token")
	return token
}
