package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog([]Room{{ID: 3, Name: "C"}, {ID: 1, Name: "A"}})

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID)

	r, err := c.Get(3)
	require.NoError(t, err)
	assert.Equal(t, "C", r.Name)

	_, err = c.Get(7)
	assert.ErrorIs(t, err, ErrNotFound)

	c.Replace(Defaults())
	assert.Len(t, c.All(), len(Defaults()))
	_, err = c.Get(3)
	assert.NoError(t, err)
}
