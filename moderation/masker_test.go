package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Mask_Replaces_Banned_Terms_Preserving_Length(t *testing.T) {
	req := require.New(t)
	masker, err := NewMasker([]string{"scam", "fraud"}, '*')
	req.NoError(err)

	masked, matched := masker.Mask("this deal is a scam, pure fraud")
	req.Equal("this deal is a ****, pure *****", masked)
	req.Len(matched, 2)
}

func Test_Mask_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	masker, err := NewMasker([]string{"scam"}, '*')
	req.NoError(err)

	masked, matched := masker.Mask("SCAM alert")
	req.Equal("**** alert", masked)
	req.Len(matched, 1)
}

func Test_Mask_Leaves_Clean_Content_Untouched(t *testing.T) {
	req := require.New(t)
	masker, err := NewMasker([]string{"scam"}, '*')
	req.NoError(err)

	original := "see you at the venue tomorrow"
	masked, matched := masker.Mask(original)
	req.Equal(original, masked)
	req.Empty(matched)
}

func Test_Empty_Term_List_Is_A_Passthrough(t *testing.T) {
	req := require.New(t)
	masker, err := NewMasker(nil, '*')
	req.NoError(err)

	masked, matched := masker.Mask("anything goes")
	req.Equal("anything goes", masked)
	req.Empty(matched)
}

func Test_Language_Detects_The_Dominant_Language(t *testing.T) {
	req := require.New(t)
	req.Equal("en", Language("the quick brown fox jumps over the lazy dog"))
}
