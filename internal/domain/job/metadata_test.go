//go:build unit

package job_test

import (
	"testing"

	"notify-dispatch/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFallback(t *testing.T) {
	t.Run("nested shape", func(t *testing.T) {
		targets := job.ParseFallback(map[string]any{
			"fallback": map[string]any{
				"emailAudience": "ops@example.com",
				"smsAudience":   "+15550100",
			},
		})
		require.NotNil(t, targets)
		assert.Equal(t, "ops@example.com", targets.EmailAudience)
		assert.Equal(t, "+15550100", targets.SMSAudience)
	})

	t.Run("legacy flat keys", func(t *testing.T) {
		targets := job.ParseFallback(map[string]any{
			"fallbackEmailAudience": "ops@example.com",
			"fallbackSmsAudience":   "+15550100",
		})
		require.NotNil(t, targets)
		assert.Equal(t, "ops@example.com", targets.EmailAudience)
		assert.Equal(t, "+15550100", targets.SMSAudience)
	})

	t.Run("nested shape wins over legacy keys", func(t *testing.T) {
		targets := job.ParseFallback(map[string]any{
			"fallback":              map[string]any{"emailAudience": "primary@example.com"},
			"fallbackEmailAudience": "legacy@example.com",
		})
		require.NotNil(t, targets)
		assert.Equal(t, "primary@example.com", targets.EmailAudience)
	})

	t.Run("single target is enough", func(t *testing.T) {
		targets := job.ParseFallback(map[string]any{
			"fallback": map[string]any{"smsAudience": "+15550100"},
		})
		require.NotNil(t, targets)
		assert.Empty(t, targets.EmailAudience)
		assert.Equal(t, "+15550100", targets.SMSAudience)
	})

	t.Run("nil or empty metadata", func(t *testing.T) {
		assert.Nil(t, job.ParseFallback(nil))
		assert.Nil(t, job.ParseFallback(map[string]any{}))
		assert.Nil(t, job.ParseFallback(map[string]any{
			"fallback": map[string]any{"emailAudience": "   "},
		}))
	})

	t.Run("non-string targets ignored", func(t *testing.T) {
		assert.Nil(t, job.ParseFallback(map[string]any{
			"fallback": map[string]any{"emailAudience": 42},
		}))
	})
}

func TestStripFallbackKeys(t *testing.T) {
	t.Run("removes every fallback shape, keeps the rest", func(t *testing.T) {
		out := job.StripFallbackKeys(map[string]any{
			"fallback":              map[string]any{"emailAudience": "a@example.com"},
			"fallbackEmailAudience": "a@example.com",
			"fallbackSmsAudience":   "+15550100",
			"fallbackReason":        "push rejected",
			"campaign":              "spring-sale",
		})

		assert.Equal(t, map[string]any{"campaign": "spring-sale"}, out)
		assert.Nil(t, job.ParseFallback(out), "stripped metadata must not re-trigger a cascade")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, job.StripFallbackKeys(nil))
	})
}
