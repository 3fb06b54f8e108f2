package blob

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"academy/internal/model"
)

var errNotConfigured = &model.StorageError{
	Reason: model.StoragePermissionDenied,
	Err:    errors.New("cloudinary credentials not configured"),
}

// Cloudinary stores media using the Cloudinary REST API.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// NewCloudinary creates a Cloudinary backend.
func NewCloudinary(cloudName, apiKey, apiSecret string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   "https://api.cloudinary.com/v1_1",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

func (c *Cloudinary) configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type uploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Bytes     int64  `json:"bytes"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Put streams the upload as multipart. The public id is the object path
// without its extension, so the path round-trips through Delete.
func (c *Cloudinary) Put(ctx context.Context, up Upload) (Object, error) {
	if !c.configured() {
		return Object{}, errNotConfigured
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"public_id": publicID(up.Path),
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		for k, v := range params {
			_ = w.WriteField(k, v)
		}
		part, err := w.CreateFormFile("file", path.Base(up.Path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, withProgress(up.Body, up.Size, up.Progress)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(w.Close())
	}()

	endpoint := fmt.Sprintf("%s/%s/%s/upload", c.BaseURL, c.CloudName, resourceType(up.ContentType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return Object{}, storageError(ctx, 0, fmt.Errorf("cloudinary: create request failed: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		pr.Close()
		return Object{}, storageError(ctx, 0, fmt.Errorf("cloudinary: request failed: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Object{}, storageError(ctx, resp.StatusCode, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, errorMessage(body)))
	}

	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return Object{}, storageError(ctx, 0, fmt.Errorf("cloudinary: decode response failed: %w", err))
	}
	link := result.SecureURL
	if link == "" {
		link = result.URL
	}
	return Object{Path: up.Path, URL: link}, nil
}

// Delete destroys the object. The resource type is not stored, so image is
// tried first and video second. A missing object is not an error.
func (c *Cloudinary) Delete(ctx context.Context, objectPath string) error {
	if !c.configured() {
		return errNotConfigured
	}
	for _, rt := range []string{"image", "video"} {
		found, err := c.destroy(ctx, rt, publicID(objectPath))
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}
	return nil
}

func (c *Cloudinary) destroy(ctx context.Context, rt, id string) (bool, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"public_id": id,
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/destroy", c.BaseURL, c.CloudName, rt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, storageError(ctx, 0, fmt.Errorf("cloudinary: create request failed: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, storageError(ctx, 0, fmt.Errorf("cloudinary: request failed: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return false, storageError(ctx, resp.StatusCode, fmt.Errorf("cloudinary: destroy failed (%d): %s", resp.StatusCode, errorMessage(body)))
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, storageError(ctx, 0, fmt.Errorf("cloudinary: decode response failed: %w", err))
	}
	return out.Result == "ok", nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are excluded from the signature.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func publicID(objectPath string) string {
	return strings.TrimSuffix(objectPath, path.Ext(objectPath))
}

func resourceType(contentType string) string {
	switch kind, _ := MediaType(contentType); kind {
	case "image":
		return "image"
	case "video":
		return "video"
	}
	return "raw"
}

func errorMessage(body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(body)
}
