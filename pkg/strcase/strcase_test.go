package strcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCamel(t *testing.T) {
	assert.Equal(t, "MobileNational", ToCamel("mobile_national"))
	assert.Equal(t, "LandlineInternational", ToCamel("landline_international"))
	assert.Equal(t, "Local", ToCamel("local"))
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "mobile_national", ToSnake("MobileNational"))
	assert.Equal(t, "local", ToSnake("Local"))
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"mobile_national", "landline_international", "local"} {
		assert.Equal(t, s, ToSnake(ToCamel(s)))
	}
}
