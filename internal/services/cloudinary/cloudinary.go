package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/filmclub/cinema-service/internal/config"
)

// ErrForeignURL means the URL is not hosted by the configured provider
// account. No network call is made for such URLs.
var ErrForeignURL = errors.New("url does not belong to the media provider")

const requestTimeout = 10 * time.Second

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Asset identifies one hosted media asset.
type Asset struct {
	PublicID     string
	ResourceType string
}

// Client talks to the Cloudinary REST API. Requests carry the provider's
// signature scheme: hex(sha1(sorted non-empty params + api secret)).
type Client struct {
	cloudName    string
	apiKey       string
	apiSecret    string
	deliveryHost string
	apiBase      string
	http         *http.Client
	now          func() time.Time
}

func New(cfg config.Cloudinary) *Client {
	return &Client{
		cloudName:    cfg.CloudName,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		deliveryHost: cfg.DeliveryHost,
		apiBase:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		http:         &http.Client{Timeout: requestTimeout},
		now:          time.Now,
	}
}

// BelongsTo reports whether the URL is hosted on this provider account.
func (c *Client) BelongsTo(rawURL string) bool {
	_, err := c.AssetFromURL(rawURL)
	return err == nil
}

// AssetFromURL extracts the canonical asset identifier from a delivery URL:
// transformation-parameter segments and the version segment are stripped,
// along with the file extension on the last segment.
func (c *Client) AssetFromURL(rawURL string) (Asset, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Asset{}, fmt.Errorf("parse media url: %w", err)
	}
	if !strings.EqualFold(u.Host, c.deliveryHost) {
		return Asset{}, ErrForeignURL
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	// <cloud>/<resource_type>/<delivery_type>/.../<public_id>.<ext>
	if len(segs) < 4 || segs[0] != c.cloudName {
		return Asset{}, ErrForeignURL
	}
	resourceType := segs[1]

	var idSegs []string
	versionSeen := false
	for _, seg := range segs[3:] {
		if strings.Contains(seg, ",") {
			// transformation parameters, e.g. w_400,h_300,c_fill
			continue
		}
		if !versionSeen && versionSegment.MatchString(seg) {
			versionSeen = true
			continue
		}
		idSegs = append(idSegs, seg)
	}
	if len(idSegs) == 0 {
		return Asset{}, ErrForeignURL
	}

	last := idSegs[len(idSegs)-1]
	idSegs[len(idSegs)-1] = strings.TrimSuffix(last, path.Ext(last))

	return Asset{PublicID: strings.Join(idSegs, "/"), ResourceType: resourceType}, nil
}

// OwnsAsset reports whether the asset's identifier carries the user's
// dedicated path segment (u-<id>). This is the only per-user deletion
// scoping the provider side has.
func OwnsAsset(publicID string, userID int) bool {
	marker := fmt.Sprintf("u-%d", userID)
	for _, seg := range strings.Split(publicID, "/") {
		if seg == marker {
			return true
		}
	}
	return false
}

// Destroy deletes an asset. A provider response of "ok" or "not found" both
// count as success so deletion stays idempotent; anything else is a
// retryable failure for the caller.
func (c *Client) Destroy(ctx context.Context, asset Asset) error {
	resourceType := asset.ResourceType
	if resourceType == "" {
		resourceType = "image"
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := c.sign(map[string]string{
		"public_id":  asset.PublicID,
		"timestamp":  timestamp,
		"invalidate": "true",
	})

	form := url.Values{}
	form.Set("public_id", asset.PublicID)
	form.Set("timestamp", timestamp)
	form.Set("api_key", c.apiKey)
	form.Set("signature", signature)
	form.Set("invalidate", "true")

	endpoint := fmt.Sprintf("%s/v1_1/%s/%s/destroy", c.apiBase, c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("destroy %s: %w", asset.PublicID, err)
	}
	defer resp.Body.Close()

	var body struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("destroy %s: decode response: %w", asset.PublicID, err)
	}

	switch body.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("destroy %s: provider returned %q (status %d)", asset.PublicID, body.Result, resp.StatusCode)
	}
}

// DestroyURL parses a delivery URL and deletes the asset behind it.
func (c *Client) DestroyURL(ctx context.Context, rawURL string) error {
	asset, err := c.AssetFromURL(rawURL)
	if err != nil {
		return err
	}
	return c.Destroy(ctx, asset)
}

// SignedUpload is the response of the upload-signing endpoint. The client
// presents these values directly to the provider's upload API.
type SignedUpload struct {
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
}

// SignUpload signs a set of upload parameters with a fresh timestamp.
func (c *Client) SignUpload(params map[string]string) SignedUpload {
	timestamp := c.now().Unix()

	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed["timestamp"] = strconv.FormatInt(timestamp, 10)

	return SignedUpload{
		Timestamp: timestamp,
		Signature: c.sign(signed),
		APIKey:    c.apiKey,
		CloudName: c.cloudName,
	}
}

// sign computes the provider signature: non-empty params sorted by key,
// joined k=v with &, concatenated with the api secret, sha1-hashed.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}
