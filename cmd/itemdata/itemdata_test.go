package itemdata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, write(&buf, map[string]interface{}{"version": "2.28", "layers": 2}))
	assert.Equal(t, "{\n  \"layers\": 2,\n  \"version\": \"2.28\"\n}\n", buf.String())
}
