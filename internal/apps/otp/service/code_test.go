package service_test

import (
	"fmt"
	"regexp"
	"testing"

	"healthtrack-backend/internal/apps/otp/service"

	"github.com/stretchr/testify/require"
)

func TestRandomCode(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		t.Run(fmt.Sprintf("%d digits", digits), func(t *testing.T) {
			pattern := regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, digits))
			seen := map[string]struct{}{}
			for i := 0; i < 50; i++ {
				code, err := service.RandomCode(digits)
				require.NoError(t, err)
				require.Regexp(t, pattern, code)
				seen[code] = struct{}{}
			}
			require.Greater(t, len(seen), 1)
		})
	}
}
