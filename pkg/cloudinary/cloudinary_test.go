package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicIDKeepsExtension(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.Equal(t, "Final-Deck-v2-1714557600.pptx", buildPublicID("Final Deck v2.PPTX", now))
	require.Equal(t, "presentation-1714557600.pdf", buildPublicID("###.pdf", now))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
