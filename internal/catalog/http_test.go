package catalog_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"StoreFront/internal/catalog"
	"StoreFront/internal/images"
	"StoreFront/pkg/cart"
)

type itemResp struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Img   string          `json:"img"`
}

func newItemsTS(t *testing.T) (*httptest.Server, *images.DiskStore) {
	t.Helper()

	imgs, err := images.NewDiskStore(t.TempDir(), "/img/", zap.NewNop())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	store := catalog.NewMemStore(nil, imgs, zap.NewNop())
	s := &catalog.Server{Store: store, Images: imgs, Log: zap.NewNop()}

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:          zap.NewNop(),
		Service:      "catalog",
		StaticDir:    imgs.Dir(),
		StaticPrefix: imgs.PublicPrefix(),
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, imgs
}

func multipartItem(t *testing.T, name, price, filename, mime string, data []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("name", name); err != nil {
		t.Fatalf("write name: %v", err)
	}
	if err := mw.WriteField("price", price); err != nil {
		t.Fatalf("write price: %v", err)
	}

	if filename != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		hdr.Set("Content-Type", mime)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postItem(t *testing.T, ts *httptest.Server, name, price, filename, mime string, data []byte) (*http.Response, []byte) {
	t.Helper()

	body, contentType := multipartItem(t, name, price, filename, mime, data)
	resp, err := http.Post(ts.URL+"/items", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func imageCount(t *testing.T, imgs *images.DiskStore) int {
	t.Helper()

	entries, err := os.ReadDir(imgs.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestItemsAPI_CreateScenario(t *testing.T) {
	ts, imgs := newItemsTS(t)

	png := bytes.Repeat([]byte{0x42}, 500*1024)
	resp, raw := postItem(t, ts, "Widget", "9.99", "widget.png", "image/png", png)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}

	var it itemResp
	if err := json.Unmarshal(raw, &it); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if it.ID != 1 {
		t.Fatalf("id = %d, want 1", it.ID)
	}
	if !it.Price.Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("price = %s, want 9.99", it.Price)
	}
	if !strings.HasPrefix(it.Img, "/img/") {
		t.Fatalf("img = %q, want /img/ prefix", it.Img)
	}
	if imageCount(t, imgs) != 1 {
		t.Fatalf("expected exactly one stored file")
	}

	// The stored image must be reachable as a static file.
	got, err := http.Get(ts.URL + it.Img)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("image status = %d", got.StatusCode)
	}
}

// TestScenario_CartSurvivesCatalogDelete walks the demo flow end to end:
// a created item is added to a cart twice, then deleted from the catalog.
// The cart line carries an add-time snapshot, so the deletion (and its
// image cleanup) must leave the cart untouched.
func TestScenario_CartSurvivesCatalogDelete(t *testing.T) {
	ts, _ := newItemsTS(t)

	png := bytes.Repeat([]byte{0x42}, 500*1024)
	resp, raw := postItem(t, ts, "Widget", "9.99", "widget.png", "image/png", png)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, raw)
	}
	var it itemResp
	if err := json.Unmarshal(raw, &it); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	e := cart.NewEngine(cart.NewMemoryBroker().Open("cart"), zap.NewNop())
	defer func() { _ = e.Close() }()

	ci := cart.Item{ID: it.ID, Name: it.Name, Price: it.Price, ImageRef: it.Img}
	e.Add(ci)
	e.Add(ci)

	if e.Count() != 2 {
		t.Fatalf("count = %d, want 2", e.Count())
	}
	if want := decimal.RequireFromString("19.98"); !e.Total().Equal(want) {
		t.Fatalf("total = %s, want %s", e.Total(), want)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/items/%d", ts.URL, it.ID), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", del.StatusCode)
	}

	lines := e.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if want := decimal.RequireFromString("9.99"); !lines[0].Price.Equal(want) {
		t.Fatalf("snapshot price = %s, want %s", lines[0].Price, want)
	}
	if want := decimal.RequireFromString("19.98"); !e.Total().Equal(want) {
		t.Fatalf("total after catalog delete = %s, want %s", e.Total(), want)
	}
}

func TestItemsAPI_CreateValidation(t *testing.T) {
	ts, imgs := newItemsTS(t)

	cases := []struct {
		name     string
		itemName string
		price    string
		filename string
		mime     string
		data     []byte
	}{
		{"empty name", "", "9.99", "w.png", "image/png", []byte("x")},
		{"bad price", "Widget", "cheap", "w.png", "image/png", []byte("x")},
		{"zero price", "Widget", "0", "w.png", "image/png", []byte("x")},
		{"negative price", "Widget", "-2", "w.png", "image/png", []byte("x")},
		{"missing image", "Widget", "9.99", "", "", nil},
		{"oversized image", "Widget", "9.99", "w.png", "image/png", bytes.Repeat([]byte{1}, images.MaxBytes+1)},
		{"wrong type", "Widget", "9.99", "w.gif", "image/gif", []byte("x")},
		{"type mismatch", "Widget", "9.99", "w.png", "image/jpeg", []byte("x")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := postItem(t, ts, tc.itemName, tc.price, tc.filename, tc.mime, tc.data)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", resp.StatusCode, raw)
			}

			var e struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
				t.Fatalf("expected {error} payload, got %s", raw)
			}
		})
	}

	if n := imageCount(t, imgs); n != 0 {
		t.Fatalf("rejected creates wrote %d files", n)
	}

	resp, err := http.Get(ts.URL + "/items")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var list []itemResp
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected creates mutated the catalog: %v", list)
	}
}

func TestItemsAPI_GetNotFound(t *testing.T) {
	ts, _ := newItemsTS(t)

	for _, path := range []string{"/items/99", "/items/banana"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestItemsAPI_Replace(t *testing.T) {
	ts, _ := newItemsTS(t)

	resp, raw := postItem(t, ts, "Widget", "9.99", "w.png", "image/png", []byte("x"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, raw)
	}

	t.Run("id mismatch", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.URL+"/items/1",
			map[string]any{"id": 2, "name": "Widget", "price": "9.99"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.URL+"/items/77",
			map[string]any{"id": 77, "name": "Ghost", "price": "1.00"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("replaces", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.URL+"/items/1",
			map[string]any{"id": 1, "name": "Widget v2", "price": "12.50"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var it itemResp
		if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if it.Name != "Widget v2" {
			t.Fatalf("name = %q", it.Name)
		}
	})
}

func TestItemsAPI_Delete(t *testing.T) {
	ts, imgs := newItemsTS(t)

	resp, raw := postItem(t, ts, "Widget", "9.99", "w.png", "image/png", []byte("x"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, raw)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/items/1", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", del.StatusCode)
	}

	if n := imageCount(t, imgs); n != 0 {
		t.Fatalf("image file not cleaned up, %d left", n)
	}

	got, err := http.Get(ts.URL + "/items/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Body.Close()
	if got.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", got.StatusCode)
	}

	again, err := http.DefaultClient.Do(req.Clone(req.Context()))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", again.StatusCode)
	}
}
