package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MaxUploadBytes is the limit for chat images and avatars.
const MaxUploadBytes = 5 * 1024 * 1024

// MaxUploadBodyBytes fits one upload as a base64 data URL plus its JSON
// envelope.
const MaxUploadBodyBytes = MaxUploadBytes/3*4 + 1<<20

var (
	ErrNotDataURL = errors.New("not a base64 data URL")
	ErrTooLarge   = errors.New("file size too large")
	ErrNotImage   = errors.New("file is not an image")
)

// DataURL is a decoded "data:<mime>;base64,<payload>" string.
type DataURL struct {
	MIMEType string
	Data     []byte
}

func (d DataURL) String() string {
	return "data:" + d.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

func (d DataURL) IsImage() bool {
	return strings.HasPrefix(d.MIMEType, "image/")
}

func ParseDataURL(s string) (DataURL, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return DataURL{}, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return DataURL{}, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DataURL{}, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return DataURL{MIMEType: strings.TrimSuffix(meta, ";base64"), Data: data}, nil
}

// DecodedSize estimates the payload size without decoding it.
func DecodedSize(s string) int {
	_, payload, ok := strings.Cut(s, ",")
	if !ok {
		return 0
	}
	return base64.StdEncoding.DecodedLen(len(payload))
}

// ValidateImageUpload checks a user supplied data URL before anything is stored.
func ValidateImageUpload(s string) (DataURL, error) {
	if DecodedSize(s) > MaxUploadBytes+2 {
		return DataURL{}, ErrTooLarge
	}
	d, err := ParseDataURL(s)
	if err != nil {
		return DataURL{}, err
	}
	if len(d.Data) > MaxUploadBytes {
		return DataURL{}, ErrTooLarge
	}
	if !d.IsImage() {
		return DataURL{}, ErrNotImage
	}
	return d, nil
}
