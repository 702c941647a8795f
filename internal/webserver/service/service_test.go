package service_test

import (
	"bytes"
	"context"
	"image"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"
	"github.com/mdouchement/depot/internal/model"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/webserver/service"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (logger.Logger, store.Store) {
	t.Helper()

	s, err := store.OpenLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	return logger.WrapLogrus(log), s
}

type part struct {
	field    string
	filename string
	content  []byte
}

func form(t *testing.T, parts ...part) *multipart.Reader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, w.WriteField(p.field, string(p.content)))
			continue
		}

		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return multipart.NewReader(&buf, w.Boundary())
}

type entry struct {
	name    string
	content []byte
}

func zipped(t *testing.T, entries ...entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func picture(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h)), format))
	return buf.Bytes()
}

func read(t *testing.T, s store.Store, object *model.Object) []byte {
	t.Helper()

	rc, err := s.Get(context.Background(), object)
	require.NoError(t, err)
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	return payload
}

//
// Upload
//

func TestObjectUploader(t *testing.T) {
	log, s := setup(t)
	ctx := context.Background()

	mr := form(t,
		part{field: "description", content: []byte("ignored")},
		part{field: "file", filename: "notes.txt", content: []byte("hello")},
		part{field: "file", filename: "cat.png", content: []byte("not really a png")},
	)

	objects, err := service.NewObjectUploader(log, s).Upload(ctx, "pets", mr)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, "notes.txt", objects[0].Filename)
	assert.Contains(t, objects[0].ContentType, "text/plain")
	assert.Equal(t, int64(5), objects[0].Size)
	assert.Equal(t, "hello", string(read(t, s, objects[0])))

	assert.Equal(t, "cat.png", objects[1].Filename)
	assert.Equal(t, "image/png", objects[1].ContentType)
	assert.Empty(t, objects[1].CorrelationID)

	assert.NotEqual(t, objects[0].ID, objects[1].ID)
}

func TestObjectUploaderMalformedBody(t *testing.T) {
	log, s := setup(t)

	mr := multipart.NewReader(strings.NewReader("garbage"), "boundary")
	_, err := service.NewObjectUploader(log, s).Upload(context.Background(), "pets", mr)
	assert.True(t, errors.Is(err, service.ErrInvalidRequest))
}

func TestObjectUploaderConcurrent(t *testing.T) {
	log, s := setup(t)
	uploader := service.NewObjectUploader(log, s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := map[string]bool{}

	forms := make([]*multipart.Reader, 8)
	for i := range forms {
		forms[i] = form(t, part{field: "file", filename: string(rune('a'+i)) + ".txt", content: []byte("data")})
	}

	for _, mr := range forms {
		wg.Add(1)
		go func(mr *multipart.Reader) {
			defer wg.Done()

			objects, err := uploader.Upload(context.Background(), "pets", mr)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			for _, o := range objects {
				ids[o.ID] = true
			}
		}(mr)
	}
	wg.Wait()

	assert.Len(t, ids, 8)
	objects, err := s.Objects(context.Background(), "pets")
	require.NoError(t, err)
	assert.Len(t, objects, 8)
}

//
// Archive
//

func TestArchiveUploader(t *testing.T) {
	log, s := setup(t)
	ctx := context.Background()

	payload := zipped(t,
		entry{name: "docs/"},
		entry{name: "docs/a.txt", content: []byte("alpha")},
		entry{name: `windows\path\b.txt`, content: []byte("bravo")},
		entry{name: "c.bin", content: []byte{0, 1, 2}},
	)

	objects, err := service.NewArchiveUploader(log, s).Upload(ctx, "docs", form(t, part{field: "archive", filename: "docs.zip", content: payload}))
	require.NoError(t, err)
	require.Len(t, objects, 3)

	assert.Equal(t, "a.txt", objects[0].Filename)
	assert.Equal(t, "b.txt", objects[1].Filename)
	assert.Equal(t, "c.bin", objects[2].Filename)
	assert.Equal(t, "alpha", string(read(t, s, objects[0])))
	assert.Equal(t, int64(3), objects[2].Size)

	correlationID := objects[0].CorrelationID
	assert.True(t, model.IsID(correlationID))
	for _, o := range objects {
		assert.Equal(t, correlationID, o.CorrelationID)
	}

	group, err := s.ObjectsByCorrelation(ctx, "docs", correlationID)
	require.NoError(t, err)
	assert.Len(t, group, 3)
}

func TestArchiveUploaderResizesImages(t *testing.T) {
	log, s := setup(t)

	small := picture(t, 300, 200, imaging.PNG)
	payload := zipped(t,
		entry{name: "large.jpg", content: picture(t, 2000, 500, imaging.JPEG)},
		entry{name: "small.png", content: small},
		entry{name: "tall.gif", content: picture(t, 200, 2000, imaging.GIF)},
	)

	uploader := service.NewArchiveUploader(log, s)
	uploader.Concurrency = 2
	objects, err := uploader.Upload(context.Background(), "pictures", form(t, part{field: "archive", filename: "pictures.zip", content: payload}))
	require.NoError(t, err)
	require.Len(t, objects, 3)

	config, format, err := image.DecodeConfig(bytes.NewReader(read(t, s, objects[0])))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1000, config.Width)
	assert.Equal(t, 250, config.Height)

	assert.Equal(t, small, read(t, s, objects[1]))
	assert.Equal(t, int64(len(small)), objects[1].Size)

	config, format, err = image.DecodeConfig(bytes.NewReader(read(t, s, objects[2])))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 100, config.Width)
	assert.Equal(t, 1000, config.Height)
}

func TestArchiveUploaderWithoutResize(t *testing.T) {
	log, s := setup(t)

	large := picture(t, 2000, 500, imaging.JPEG)
	uploader := service.NewArchiveUploader(log, s)
	uploader.MaxImageEdge = 0

	objects, err := uploader.Upload(context.Background(), "pictures", form(t, part{field: "archive", filename: "pictures.zip", content: zipped(t, entry{name: "large.jpg", content: large})}))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, large, read(t, s, objects[0]))
}

func TestArchiveUploaderInvalid(t *testing.T) {
	log, s := setup(t)
	uploader := service.NewArchiveUploader(log, s)
	ctx := context.Background()

	_, err := uploader.Upload(ctx, "docs", form(t, part{field: "description", content: []byte("no file")}))
	assert.True(t, errors.Is(err, service.ErrInvalidRequest))

	_, err = uploader.Upload(ctx, "docs", form(t, part{field: "archive", filename: "docs.zip", content: []byte("not a zip")}))
	assert.True(t, errors.Is(err, service.ErrInvalidRequest))

	containers, err := s.Containers(ctx)
	require.NoError(t, err)
	assert.Empty(t, containers)
}

type flakyStore struct {
	store.Store
	fail string
}

func (s *flakyStore) Put(ctx context.Context, object *model.Object, r io.Reader) error {
	if object.Filename == s.fail {
		return store.WriteError(errors.New("disk full"), "could not write blob")
	}
	return s.Store.Put(ctx, object, r)
}

func TestArchiveUploaderWriteFailure(t *testing.T) {
	log, s := setup(t)
	flaky := &flakyStore{Store: s, fail: "b.txt"}

	payload := zipped(t,
		entry{name: "a.txt", content: []byte("alpha")},
		entry{name: "b.txt", content: bytes.Repeat([]byte("bravo"), 100000)},
		entry{name: "c.txt", content: []byte("charlie")},
	)

	_, err := service.NewArchiveUploader(log, flaky).Upload(context.Background(), "docs", form(t, part{field: "archive", filename: "docs.zip", content: payload}))
	assert.True(t, errors.Is(err, store.ErrStorageWrite))
	assert.False(t, errors.Is(err, service.ErrInvalidRequest))
}

//
// Download
//

func TestResolve(t *testing.T) {
	log, s := setup(t)
	ctx := context.Background()

	objects, err := service.NewObjectUploader(log, s).Upload(ctx, "pets", form(t, part{field: "file", filename: "cat.txt", content: []byte("meow")}))
	require.NoError(t, err)
	cat := objects[0]

	found, err := service.Resolve(ctx, s, "pets", cat.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, found.ID)

	found, err = service.Resolve(ctx, s, "pets", "cat.txt")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, found.ID)

	_, err = service.Resolve(ctx, s, "pets", model.NewID())
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = service.Resolve(ctx, s, "cars", cat.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = service.Resolve(ctx, s, "pets", "dog.txt")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	d := service.NewObjectDownloader(s, found)
	assert.Equal(t, int64(4), d.Size())
	assert.Contains(t, d.ContentType(), "text/plain")
	assert.NotEmpty(t, d.Checksum())

	rc, err := d.Stream(ctx)
	require.NoError(t, err)
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(payload))
}

func TestArchiveDownloader(t *testing.T) {
	log, s := setup(t)
	ctx := context.Background()

	_, err := service.NewArchiveDownloader(ctx, log, s, "pets")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	png := picture(t, 10, 10, imaging.PNG)
	_, err = service.NewObjectUploader(log, s).Upload(ctx, "pets", form(t,
		part{field: "file", filename: "cat.txt", content: []byte("meow")},
		part{field: "file", filename: "dog.png", content: png},
	))
	require.NoError(t, err)

	d, err := service.NewArchiveDownloader(ctx, log, s, "pets")
	require.NoError(t, err)
	assert.Equal(t, "file.zip", d.Filename(""))
	assert.Equal(t, "pets.zip", d.Filename("pets"))

	var buf bytes.Buffer
	require.NoError(t, d.Stream(ctx, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		entries[f.Name], err = io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
	}
	assert.Equal(t, "meow", string(entries["cat.txt"]))
	assert.Equal(t, png, entries["dog.png"])
}

func TestValidateContainer(t *testing.T) {
	for _, name := range []string{"pets", "a_b", "my pets", "été"} {
		assert.NoError(t, service.ValidateContainer(name), name)
	}

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "/"} {
		err := service.ValidateContainer(name)
		assert.True(t, errors.Is(err, service.ErrInvalidRequest), name)
	}
}
