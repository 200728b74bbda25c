package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/raster"
)

func validSource() TileSource {
	return TileSource{
		Name:        "test-dem",
		URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.png",
		TileSize:    256,
		Encoding:    raster.EncodingTerrarium,
		MaxZoom:     14,
	}
}

func TestTileSource_Validate(t *testing.T) {
	require.NoError(t, validSource().Validate())

	tests := []struct {
		name   string
		mutate func(*TileSource)
	}{
		{"missing name", func(s *TileSource) { s.Name = "" }},
		{"missing placeholder", func(s *TileSource) { s.URLTemplate = "https://tiles.example.com/{z}/{x}.png" }},
		{"zero tile size", func(s *TileSource) { s.TileSize = 0 }},
		{"zero max zoom", func(s *TileSource) { s.MaxZoom = 0 }},
		{"unknown encoding", func(s *TileSource) { s.Encoding = "sonar" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSource()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestTileSource_URL(t *testing.T) {
	s := validSource()
	url := s.URL(geo.Tile{X: 2170, Y: 1191, Zoom: 12})
	assert.Equal(t, "https://tiles.example.com/12/2170/1191.png", url)
}

func TestRegistry_LookupAndRejections(t *testing.T) {
	r, err := NewRegistry(validSource())
	require.NoError(t, err)

	s, err := r.Lookup("test-dem")
	require.NoError(t, err)
	assert.Equal(t, "test-dem", s.Name)

	_, err = r.Lookup("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = NewRegistry(validSource(), validSource())
	assert.Error(t, err, "duplicate names are rejected")

	bad := validSource()
	bad.TileSize = -1
	_, err = NewRegistry(bad)
	assert.Error(t, err)
}

func TestBuiltinSources(t *testing.T) {
	// Without a token only the public terrarium source registers.
	sources := BuiltinSources("")
	require.Len(t, sources, 1)
	assert.Equal(t, "terrarium", sources[0].Name)

	sources = BuiltinSources("pk.token")
	require.Len(t, sources, 2)
	for _, s := range sources {
		assert.NoError(t, s.Validate())
	}
	assert.Contains(t, sources[1].URLTemplate, "access_token=pk.token")
}
