//go:build !ocr

package tesseract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRecognizerNotEnabled(t *testing.T) {
	r, err := NewRecognizer()

	require.ErrorIs(t, err, ErrNotEnabled)
	require.Nil(t, r)
}
