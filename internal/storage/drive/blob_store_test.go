package drive

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type upload struct {
	name    string
	parents []string
	body    string
	ctype   string
}

type fakeDrive struct {
	mu      sync.Mutex
	uploads []upload
	folder  string
}

func (d *fakeDrive) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files/folder-1"):
			_, _ = w.Write([]byte(d.folder))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files"):
			up, err := readMultipart(r)
			if !assert.NoError(t, err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			d.mu.Lock()
			d.uploads = append(d.uploads, up)
			n := len(d.uploads)
			d.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "file-" + string(rune('0'+n))})
		default:
			http.NotFound(w, r)
		}
	}
}

func readMultipart(r *http.Request) (upload, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return upload{}, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		return upload{}, err
	}
	var meta struct {
		Name    string   `json:"name"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		return upload{}, err
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		return upload{}, err
	}
	body, err := io.ReadAll(mediaPart)
	if err != nil {
		return upload{}, err
	}
	return upload{name: meta.Name, parents: meta.Parents, body: string(body), ctype: mediaPart.Header.Get("Content-Type")}, nil
}

func newTestStore(t *testing.T, d *fakeDrive) *BlobStore {
	t.Helper()
	srv := httptest.NewServer(d.handler(t))
	t.Cleanup(srv.Close)
	store, err := New(context.Background(), Config{FolderID: "folder-1"},
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsIntoFolder(t *testing.T) {
	t.Parallel()

	d := &fakeDrive{}
	store := newTestStore(t, d)

	uri, err := store.PutObject(context.Background(), "J1_text.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "drive://folder-1/file-1", uri)

	require.Len(t, d.uploads, 1)
	require.Equal(t, "J1_text.txt", d.uploads[0].name)
	require.Equal(t, []string{"folder-1"}, d.uploads[0].parents)
	require.Equal(t, "hello", d.uploads[0].body)
	require.Equal(t, "text/plain", d.uploads[0].ctype)
}

func TestPutObjectKeepsDuplicateNames(t *testing.T) {
	t.Parallel()

	d := &fakeDrive{}
	store := newTestStore(t, d)

	_, err := store.PutObject(context.Background(), "J1_text.txt", "text/plain", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "J1_text.txt", "text/plain", strings.NewReader("b"))
	require.NoError(t, err)
	require.Len(t, d.uploads, 2)
}

func TestPutObjectRequiresName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeDrive{})
	_, err := store.PutObject(context.Background(), " ", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		folder  string
		wantErr string
	}{
		{name: "folder", folder: `{"id":"folder-1","mimeType":"application/vnd.google-apps.folder"}`},
		{name: "trashed", folder: `{"id":"folder-1","mimeType":"application/vnd.google-apps.folder","trashed":true}`, wantErr: "trashed"},
		{name: "not a folder", folder: `{"id":"folder-1","mimeType":"text/plain"}`, wantErr: "not a folder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newTestStore(t, &fakeDrive{folder: tt.folder})
			err := store.Ready(context.Background())
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewRequiresFolder(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
