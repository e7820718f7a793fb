// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantsDefined(t *testing.T) {
	for name, value := range map[string]string{
		"Version":      Version,
		"Product":      Product,
		"Manufacturer": Manufacturer,
	} {
		assert.NotEmpty(t, value, name)
		assert.Less(t, len(value), 100, name)
		assert.NotContains(t, []string{"TODO", "FIXME", "XXX", "placeholder"}, value, name)
	}
}

func TestVersionIsSemver(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d+\.\d+$`), Version)
}
