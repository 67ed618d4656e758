package mediagroup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePhotoCount_Bounds(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 5; n++ {
		require.NoError(t, ValidatePhotoCount(n), "n=%d should be valid", n)
	}

	err := ValidatePhotoCount(0)
	require.Error(t, err)

	err = ValidatePhotoCount(6)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Maximum 5 photos")
}

func TestValidateDisplayOrder_Bounds(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateDisplayOrder(0))
	require.NoError(t, ValidateDisplayOrder(4))
	require.Error(t, ValidateDisplayOrder(-1))
	require.Error(t, ValidateDisplayOrder(5))
}

func TestValidatePhotoMIMEType(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidatePhotoMIMEType("image/jpeg"))
	require.NoError(t, ValidatePhotoMIMEType("image/webp"))
	require.Error(t, ValidatePhotoMIMEType("image/gif"))
}

func TestValidatePhotoFileSize(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidatePhotoFileSize(10*1024*1024))
	err := ValidatePhotoFileSize(21 * 1024 * 1024)
	require.Error(t, err)
	require.Contains(t, err.Error(), "20MB")
}
