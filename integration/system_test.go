//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"testing"
	"time"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080")

func TestSystem_E2E(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	name := fmt.Sprintf("Widget %d", time.Now().UnixNano())

	var created map[string]any
	postMultipartItem(t, name, "9.99", smallPNG(), &created, 200)

	id, ok := created["id"].(float64)
	if !ok || id <= 0 {
		t.Fatalf("item id missing: %#v", created)
	}
	img, _ := created["img"].(string)
	if img == "" {
		t.Fatalf("image ref missing: %#v", created)
	}

	var got map[string]any
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/items/%.0f", baseURL, id), nil, &got, 200)
	if got["name"] != name {
		t.Fatalf("name = %v, want %q", got["name"], name)
	}

	// The uploaded image must be served as a static file.
	doJSON(t, http.MethodGet, baseURL+img, nil, nil, 200)

	doJSON(t, http.MethodDelete, fmt.Sprintf("%s/items/%.0f", baseURL, id), nil, nil, 204)
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/items/%.0f", baseURL, id), nil, nil, 404)

	// The image file goes with the item.
	doJSON(t, http.MethodGet, baseURL+img, nil, nil, 404)

	if os.Getenv("E2E_RESTART_STOREFRONT") == "1" {
		// The catalog is in-memory by design: a restart reseeds the demo
		// items and forgets everything created above.
		restartStorefrontContainer(t, ctx)
		waitReady(t, ctx, baseURL+"/readyz")

		var items []map[string]any
		doJSON(t, http.MethodGet, baseURL+"/items", nil, &items, 200)
		for _, it := range items {
			if it["name"] == name {
				t.Fatalf("in-memory catalog survived a restart: %#v", it)
			}
		}
	}
}

func smallPNG() []byte {
	return bytes.Repeat([]byte{0x89}, 2048)
}

func postMultipartItem(t *testing.T, name, price string, image []byte, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", name); err != nil {
		t.Fatalf("write name: %v", err)
	}
	if err := mw.WriteField("price", price); err != nil {
		t.Fatalf("write price: %v", err)
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="e2e.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(baseURL+"/items", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post item: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /items: status=%d want=%d body=%s", resp.StatusCode, want, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSON(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
