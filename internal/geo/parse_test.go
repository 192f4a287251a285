package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLat float64
		wantLon float64
		wantH   float64
		hasH    bool
		wantErr bool
	}{
		{
			name:    "lon lat only",
			input:   "11.5755,48.1374",
			wantLat: 48.1374, wantLon: 11.5755, hasH: false,
		},
		{
			name:    "with elevation",
			input:   "11.5755,48.1374,520.5",
			wantLat: 48.1374, wantLon: 11.5755, wantH: 520.5, hasH: true,
		},
		{
			name:    "spaces tolerated",
			input:   " -74.0060 , 40.7128 ",
			wantLat: 40.7128, wantLon: -74.0060, hasH: false,
		},
		{name: "too few parts", input: "11.5755", wantErr: true},
		{name: "too many parts", input: "1,2,3,4", wantErr: true},
		{name: "garbage longitude", input: "abc,48.1", wantErr: true},
		{name: "garbage elevation", input: "11.5,48.1,xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePosition(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLat, got.Lat)
			assert.Equal(t, tt.wantLon, got.Lon)
			assert.Equal(t, tt.hasH, got.HasHeight)
			if tt.hasH {
				assert.Equal(t, tt.wantH, got.Height)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	path, err := ParsePath(`[[11.57,48.13],[11.58,48.14,510.0],[11.59,48.15]]`)
	require.NoError(t, err)
	require.Len(t, path, 3)

	assert.Equal(t, 48.13, path[0].Lat)
	assert.Equal(t, 11.57, path[0].Lon)
	assert.False(t, path[0].HasHeight)

	assert.True(t, path[1].HasHeight)
	assert.Equal(t, 510.0, path[1].Height)
}

func TestParsePath_Errors(t *testing.T) {
	_, err := ParsePath(`not json`)
	assert.Error(t, err)

	_, err = ParsePath(`[[11.57,48.13]]`)
	assert.Error(t, err, "single point is not a path")

	_, err = ParsePath(`[[11.57,48.13],[11.58]]`)
	assert.Error(t, err, "coordinate with one value")
}

func TestParsePathLineString(t *testing.T) {
	ls, err := ParsePathLineString(`[[11.57,48.13],[11.58,48.14],[11.59,48.15]]`)
	require.NoError(t, err)
	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())
	assert.Equal(t, 11.57, seq.GetXY(0).X)
	assert.Equal(t, 48.13, seq.GetXY(0).Y)
}

func TestPoint3857_RoundTrip(t *testing.T) {
	pt := Point3857(48.1374, 11.5755)
	xy, ok := pt.XY()
	require.True(t, ok)

	lat, lon := LatLonFrom3857(xy.X, xy.Y)
	assert.InDelta(t, 48.1374, lat, 1e-6)
	assert.InDelta(t, 11.5755, lon, 1e-6)
}
