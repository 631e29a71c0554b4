package ingest

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixture builds a small dam-sites shapefile on disk.
func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dams.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	fields := []shp.Field{
		shp.StringField("SITE_ID", 16),
		shp.StringField("NAME", 32),
		shp.StringField("RIVER", 32),
	}
	w.SetFields(fields)

	rows := []struct {
		pt   shp.Point
		vals [3]string
	}{
		{shp.Point{X: -114.737, Y: 36.016}, [3]string{"hoover", "Hoover Dam", "Colorado"}},
		{shp.Point{X: -111.484, Y: 36.937}, [3]string{"glen-canyon", "Glen Canyon Dam", "Colorado"}},
		{shp.Point{X: -121.485, Y: 39.539}, [3]string{"oroville", "Oroville Dam", ""}},
	}
	for i, r := range rows {
		w.Write(&r.pt)
		for j, v := range r.vals {
			require.NoError(t, w.WriteAttribute(i, j, v))
		}
	}
	w.Close()
	return path
}

func TestConvert(t *testing.T) {
	path := writeFixture(t)

	fc, err := Convert(path, Options{
		IDField:   "SITE_ID",
		NameField: "NAME",
		Fields:    []string{"RIVER"},
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	first := fc.Features[0]
	assert.Equal(t, "hoover", first.ID)
	assert.Equal(t, "Hoover Dam", first.Properties["name"])
	assert.Equal(t, "Colorado", first.Properties["river"])
	assert.Equal(t, orb.Point{-114.737, 36.016}, first.Geometry)

	// Blank attributes are dropped, not carried as empty strings.
	third := fc.Features[2]
	_, hasRiver := third.Properties["river"]
	assert.False(t, hasRiver)
}

func TestConvertMissingFieldTolerated(t *testing.T) {
	path := writeFixture(t)

	fc, err := Convert(path, Options{IDField: "NO_SUCH_FIELD", NameField: "NAME"})
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	assert.Nil(t, fc.Features[0].ID)
}

func TestConvertMissingFile(t *testing.T) {
	_, err := Convert(filepath.Join(t.TempDir(), "absent.shp"), Options{})
	require.Error(t, err)
}

func TestRows(t *testing.T) {
	path := writeFixture(t)

	rows, err := Rows(path, []string{"SITE_ID", "NAME"})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Len(t, rows[0], 3)
	assert.Equal(t, "hoover", rows[0][0])
	assert.Equal(t, "Hoover Dam", rows[0][1])
	assert.NotEmpty(t, rows[0][2].([]byte))
}
