package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"pathpatrol/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newDiskStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewDiskBackend(dir)
	require.NoError(t, err)
	s := NewStore(backend, dir)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return s, dir
}

func TestSaveWritesOptimizedImage(t *testing.T) {
	s, dir := newDiskStore(t)
	raw := pngBytes(t, 2400, 1200, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	handle, err := s.Save(context.Background(), raw, "Road.PNG")

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^uploads/pothole_20240506_070809_[0-9a-f]{8}\.png$`), handle)
	assert.Equal(t, filepath.Join(dir, "uploads", strings.TrimPrefix(handle, "uploads/")), s.Resolve(handle))

	f, err := os.Open(s.Resolve(handle))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 960, cfg.Height)
}

func TestSaveFlattensTransparencyOntoWhite(t *testing.T) {
	s, _ := newDiskStore(t)
	raw := pngBytes(t, 10, 10, color.NRGBA{A: 0})

	handle, err := s.Save(context.Background(), raw, "clear.png")
	require.NoError(t, err)

	f, err := os.Open(s.Resolve(handle))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, a := img.At(5, 5).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
}

func TestSaveRejectsExtension(t *testing.T) {
	s, dir := newDiskStore(t)

	_, err := s.Save(context.Background(), []byte("GIF89a"), "notes.bmp")

	assert.True(t, errors.Is(err, ErrInvalidExtension))
	assert.True(t, errors.Is(err, model.ErrValidation))
	entries, _ := os.ReadDir(filepath.Join(dir, "uploads"))
	assert.Empty(t, entries)
}

func TestSaveRejectsOversizedPayload(t *testing.T) {
	s, dir := newDiskStore(t)
	raw := make([]byte, 11<<20)

	_, err := s.Save(context.Background(), raw, "huge.jpg")

	assert.True(t, errors.Is(err, ErrTooLarge))
	entries, _ := os.ReadDir(filepath.Join(dir, "uploads"))
	assert.Empty(t, entries)
}

func TestSaveRejectsUndecodableImage(t *testing.T) {
	s, _ := newDiskStore(t)

	_, err := s.Save(context.Background(), []byte("not an image"), "photo.jpg")

	assert.True(t, errors.Is(err, ErrInvalidImage))
}

func TestSaveNamesDifferWithinOneSecond(t *testing.T) {
	s, _ := newDiskStore(t)
	tick := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	raw := pngBytes(t, 4, 4, color.Black)

	a, err := s.Save(context.Background(), raw, "same.png")
	require.NoError(t, err)
	b, err := s.Save(context.Background(), raw, "same.png")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _ := newDiskStore(t)
	handle, err := s.Save(context.Background(), pngBytes(t, 4, 4, color.Black), "a.png")
	require.NoError(t, err)

	first, err := s.Delete(context.Background(), handle)
	require.NoError(t, err)
	second, err := s.Delete(context.Background(), handle)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestValidateHandle(t *testing.T) {
	assert.NoError(t, ValidateHandle("uploads/pothole_1.jpg"))
	for _, h := range []string{"", "uploads/", "uploads/../secret", "../uploads/a.jpg", "other/a.jpg", "uploads/x/a.jpg", "/uploads/a.jpg", `uploads\a.jpg`} {
		assert.ErrorIs(t, ValidateHandle(h), ErrInvalidHandle, h)
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("uploads/a.JPG"))
	assert.Equal(t, "image/png", ContentType("uploads/a.png"))
	assert.Equal(t, "application/octet-stream", ContentType("uploads/a"))
}

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3BackendRoundTrip(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{}}
	s := NewStore(NewS3Backend(objects, "potholes"), "data")

	handle, err := s.Save(context.Background(), pngBytes(t, 4, 4, color.Black), "a.png")
	require.NoError(t, err)
	assert.Contains(t, objects.objects, handle)

	rc, err := s.Open(context.Background(), handle)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, objects.objects[handle], data)

	deleted, err := s.Delete(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Open(context.Background(), handle)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpenMissingImageOnDisk(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewDiskBackend(dir)
	require.NoError(t, err)

	_, err = NewStore(backend, dir).Open(context.Background(), "uploads/missing.jpg")

	assert.ErrorIs(t, err, model.ErrNotFound)
}
