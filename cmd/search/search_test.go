package search

import (
	"bytes"
	"testing"

	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/stretchr/testify/assert"
)

func TestList(t *testing.T) {
	items := []api.Item{
		{ID: "a1", Type: "Tile Package", Title: "Roads"},
		{ID: "b2", Type: "Map Package", Title: "Rivers"},
	}
	var buf bytes.Buffer
	list(&buf, items)
	assert.Equal(t, "a1\tTile Package\tRoads\nb2\tMap Package\tRivers\n", buf.String())
}
