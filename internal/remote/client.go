package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/notecam/fieldsync/internal/model"
)

// Config holds the connection settings for the hosted backend.
type Config struct {
	// BaseURL is the project root, e.g. https://xyz.example.co
	BaseURL string

	// APIKey is sent as both the apikey header and the bearer token.
	APIKey string

	// Bucket is the storage bucket holding photo binaries.
	Bucket string

	// Timeout bounds each request so a hung call cannot block a sync
	// cycle indefinitely. Default: 20s.
	Timeout time.Duration

	// Logger for request failures. Default: stderr logger.
	Logger *log.Logger
}

// Client talks to the PostgREST tables and the storage bucket.
// It implements Store.
type Client struct {
	baseURL string
	apiKey  string
	bucket  string
	httpc   *http.Client
	logger  *log.Logger
}

// NewClient creates a Client from config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		bucket:  cfg.Bucket,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

var _ Store = (*Client)(nil)

// TestConnection implements Store. It issues the cheapest possible read
// against the users table.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/rest/v1/users?select=username&limit=1", nil, nil, nil)
}

// FetchUsers implements Store.
func (c *Client) FetchUsers(ctx context.Context) ([]model.User, error) {
	var wires []userWire
	if err := c.do(ctx, http.MethodGet, "/rest/v1/users?select=*&order=created_at.desc", nil, nil, &wires); err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(wires))
	for _, w := range wires {
		users = append(users, userFromWire(w))
	}
	return users, nil
}

// CreateUser implements Store. The insert upserts on username so pushing
// the same user twice stays idempotent.
func (c *Client) CreateUser(ctx context.Context, u model.User) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/users?on_conflict=username",
		userToWire(u), upsertHeaders(), nil)
}

// UpdateUser implements Store.
func (c *Client) UpdateUser(ctx context.Context, username string, patch UserUpdate) error {
	path := "/rest/v1/users?username=eq." + url.QueryEscape(username)
	return c.do(ctx, http.MethodPatch, path, patch, nil, nil)
}

// DeleteUser implements Store.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	path := "/rest/v1/users?username=eq." + url.QueryEscape(username)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// FetchZones implements Store.
func (c *Client) FetchZones(ctx context.Context) ([]model.Zone, error) {
	var wires []zoneWire
	if err := c.do(ctx, http.MethodGet, "/rest/v1/assigned_areas?select=*&order=created_at.desc", nil, nil, &wires); err != nil {
		return nil, err
	}
	zones := make([]model.Zone, 0, len(wires))
	for _, w := range wires {
		zones = append(zones, zoneFromWire(w))
	}
	return zones, nil
}

// CreateZone implements Store. The zone code's unique constraint lives on
// the remote table; a violation comes back as ErrRemoteRejected.
func (c *Client) CreateZone(ctx context.Context, z model.Zone) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/assigned_areas?on_conflict=id",
		zoneToWire(z), upsertHeaders(), nil)
}

// UpdateZone implements Store.
func (c *Client) UpdateZone(ctx context.Context, id int64, patch ZoneUpdate) error {
	path := "/rest/v1/assigned_areas?id=eq." + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodPatch, path, patch, nil, nil)
}

// DeleteZone implements Store.
func (c *Client) DeleteZone(ctx context.Context, id int64) error {
	path := "/rest/v1/assigned_areas?id=eq." + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// FetchReports implements Store.
func (c *Client) FetchReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	if filter.Employee != "" {
		q.Set("employee", "eq."+filter.Employee)
	}
	if filter.AreaCode != "" {
		q.Set("area_code", "eq."+filter.AreaCode)
	}
	if filter.Status != "" {
		q.Set("status", "eq."+filter.Status)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var wires []reportWire
	if err := c.do(ctx, http.MethodGet, "/rest/v1/reports?"+q.Encode(), nil, nil, &wires); err != nil {
		return nil, err
	}
	reports := make([]model.Report, 0, len(wires))
	for _, w := range wires {
		reports = append(reports, reportFromWire(w))
	}
	return reports, nil
}

// CreateReport implements Store. Upserts on id, so a retried phase-1
// submission results in at most one remote row.
func (c *Client) CreateReport(ctx context.Context, r model.Report) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/reports?on_conflict=id",
		reportToWire(r), upsertHeaders(), nil)
}

// UpdateReport implements Store. This is the phase-2 path: it patches the
// existing row by id and cannot create a duplicate.
func (c *Client) UpdateReport(ctx context.Context, id int64, patch ReportUpdate) error {
	body := struct {
		NumberAfter    *int        `json:"number_after,omitempty"`
		Status         *string     `json:"status,omitempty"`
		CompletionDate *time.Time  `json:"completion_date,omitempty"`
		AfterPhotos    []photoWire `json:"after_photos,omitempty"`
	}{
		NumberAfter:    patch.NumberAfter,
		Status:         patch.Status,
		CompletionDate: patch.CompletionDate,
		AfterPhotos:    photosToWire(patch.AfterPhotos),
	}
	path := "/rest/v1/reports?id=eq." + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodPatch, path, body, nil, nil)
}

// DeleteReport implements Store.
func (c *Client) DeleteReport(ctx context.Context, id int64) error {
	path := "/rest/v1/reports?id=eq." + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// UploadPhoto implements Store. The object path is
// {userID}/{zoneCode}/{filename} where the filename embeds the report id
// and capture time, matching the bucket layout the UI reads.
func (c *Client) UploadPhoto(ctx context.Context, blob []byte, meta PhotoMeta) (string, error) {
	filename := fmt.Sprintf("photo_%d_%s_%d.jpg", meta.ReportID, meta.Type, meta.Taken.UnixMilli())
	objectPath := fmt.Sprintf("%s/%s/%s", meta.UserID, meta.ZoneCode, filename)

	uploadPath := "/storage/v1/object/" + c.bucket + "/" + objectPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", classifyTransport(err, "upload photo")
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, "upload photo"); err != nil {
		return "", err
	}

	publicURL := c.baseURL + "/storage/v1/object/public/" + c.bucket + "/" + objectPath

	// Record the metadata row. The blob is already stored; a failure here
	// is surfaced so the item can be retried (the upsert keeps it safe).
	metaRow := photoWire{
		ID:        filename,
		ReportID:  meta.ReportID,
		PhotoType: meta.Type,
		Index:     meta.Index,
		FilePath:  objectPath,
		PublicURL: publicURL,
		Location:  locationToWire(meta.Location),
		Timestamp: meta.Taken,
		Status:    model.PhotoUploaded,
	}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/photos_metadata?on_conflict=id",
		metaRow, upsertHeaders(), nil); err != nil {
		return "", err
	}

	return publicURL, nil
}

// DeletePhoto implements Store.
func (c *Client) DeletePhoto(ctx context.Context, objectPath string) error {
	return c.do(ctx, http.MethodDelete, "/storage/v1/object/"+c.bucket+"/"+objectPath, nil, nil, nil)
}

// upsertHeaders asks PostgREST to merge on conflict instead of failing,
// which is what makes create calls idempotent by key.
func upsertHeaders() http.Header {
	h := http.Header{}
	h.Set("Prefer", "resolution=merge-duplicates")
	return h
}

// do executes one API request: marshals body (if any), sets auth headers,
// classifies transport and status failures, and decodes the response into
// out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body interface{}, extra http.Header, out interface{}) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.setAuth(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return classifyTransport(err, op)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, op); err != nil {
		// Include a snippet of the response body for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(snippet) > 0 {
			c.logger.Printf("%s failed: %s", op, snippet)
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
