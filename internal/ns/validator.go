package ns

// UnknownSize marks an upload whose length is not declared up front.
const UnknownSize int64 = -1

// ContentValidator admits uploads by file type and size before anything is
// written.
type ContentValidator struct {
	maxSize int64
}

func NewContentValidator(maxSize int64) *ContentValidator {
	return &ContentValidator{maxSize: maxSize}
}

// MaxSize returns the largest admitted upload in bytes.
func (v *ContentValidator) MaxSize() int64 { return v.maxSize }

// Admit returns a *ValidationError when the type is not whitelisted or the
// declared size is out of range. Pass UnknownSize when the length is not
// known; the caller then enforces MaxSize while reading.
func (v *ContentValidator) Admit(fileType string, size int64) error {
	ext := NormalizeExtension(fileType)
	if ext == "" {
		return rejectf("missing file type")
	}
	if _, ok := extensions[ext]; !ok {
		return rejectf("file type %q not allowed", ext)
	}
	if size < 0 && size != UnknownSize {
		return rejectf("invalid size %d", size)
	}
	if size > v.maxSize {
		return &ValidationError{
			Reason:   "file exceeds maximum upload size",
			TooLarge: true,
		}
	}
	return nil
}
