package media

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURL(t *testing.T) {
	d, err := ParseDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png!")))
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIMEType)
	assert.Equal(t, []byte("png!"), d.Data)
	assert.True(t, d.IsImage())

	_, err = ParseDataURL("https://picsum.photos/200")
	assert.ErrorIs(t, err, ErrNotDataURL)
	_, err = ParseDataURL("data:image/png,rawtext")
	assert.ErrorIs(t, err, ErrNotDataURL)
}

func TestValidateImageUpload(t *testing.T) {
	small := DataURL{MIMEType: "image/jpeg", Data: []byte("jpeg")}.String()
	_, err := ValidateImageUpload(small)
	assert.NoError(t, err)

	big := "data:image/jpeg;base64," + strings.Repeat("A", base64.StdEncoding.EncodedLen(MaxUploadBytes+1024))
	_, err = ValidateImageUpload(big)
	assert.ErrorIs(t, err, ErrTooLarge)

	pdf := DataURL{MIMEType: "application/pdf", Data: []byte("%PDF")}.String()
	_, err = ValidateImageUpload(pdf)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("https://cdn.test")
	url, err := s.Put(context.Background(), "recordings/c1.webm", "video/webm", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/recordings/c1.webm", url)

	o, ok := s.Get("recordings/c1.webm")
	require.True(t, ok)
	assert.Equal(t, "video/webm", o.ContentType)
}
