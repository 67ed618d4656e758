package mediagroup

import (
	"fmt"
)

const (
	minPhotoCount  = 1
	maxPhotoCount  = 5
	maxFileSizeMB  = 20
	maxFileSizeB   = maxFileSizeMB * 1024 * 1024
)

// ValidationError is a caller-visible HTTP 400 with a user-facing message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// ValidatePhotoCount enforces the platform's 1..5 photo-per-message policy.
func ValidatePhotoCount(n int) error {
	if n < minPhotoCount {
		return &ValidationError{Message: "at least one photo is required"}
	}
	if n > maxPhotoCount {
		return &ValidationError{Message: PhotoLimitMessage()}
	}
	return nil
}

// PhotoLimitMessage is the user-facing explanation shown when a submission
// exceeds the photo limit.
func PhotoLimitMessage() string {
	return "Maximum 5 photos per message for better calorie estimation. Please send up to 5 photos in one message."
}

// ValidateDisplayOrder enforces 0 <= i <= 4 for a photo's position within a
// media group.
func ValidateDisplayOrder(i int) error {
	if i < 0 || i > maxPhotoCount-1 {
		return fmt.Errorf("display_order must be between 0 and %d, got %d", maxPhotoCount-1, i)
	}
	return nil
}

// ValidatePhotoMIMEType accepts only image/jpeg, image/png, image/webp, image/jpg.
func ValidatePhotoMIMEType(mime string) error {
	if !allowedMimeTypes[mime] {
		return fmt.Errorf("unsupported photo mime type %q", mime)
	}
	return nil
}

// ValidatePhotoFileSize rejects photos larger than the platform's 20MB limit.
func ValidatePhotoFileSize(bytes int64) error {
	if bytes > maxFileSizeB {
		return fmt.Errorf("photo exceeds the 20MB size limit")
	}
	return nil
}
