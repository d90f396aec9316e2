package eventcatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_KnownEventID(t *testing.T) {
	assert.Equal(t, "An account failed to log on", Describe(4625))
}

func TestDescribe_UnknownEventIDFallsBackToGeneric(t *testing.T) {
	assert.Equal(t, "Event ID 999999", Describe(999999))
}
