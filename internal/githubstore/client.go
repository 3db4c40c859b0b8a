package githubstore

import (
	"bytes"           // Request body buffer
	"context"         // Context for HTTP requests
	"encoding/base64" // Contents API payloads are base64
	"encoding/json"   // Blob payloads are JSON documents
	"errors"          // Sentinel errors
	"net/http"        // GitHub REST API client
	"time"            // Request timeout

	"github.com/sirupsen/logrus" // Logging library
)

// ErrRevisionConflict is returned by Save when the supplied revision no
// longer matches the remote file, meaning someone else wrote in between.
// Callers may refresh the revision and retry.
var ErrRevisionConflict = errors.New("githubstore: revision conflict")

// Client reads and writes named JSON blobs in a GitHub repository,
// using the contents API as a crude key-value store. Each blob lives
// at db/<name>.json on the configured branch.
type Client struct {
	BaseURL string // API base, overridable for tests
	token   string // API token
	owner   string // Repository owner
	repo    string // Repository name
	branch  string // Branch holding the database files
	http    *http.Client
}

// NewClient creates a blob store client for one repository
func NewClient(token, owner, repo, branch string) *Client {
	return &Client{
		BaseURL: "https://api.github.com",        // Default GitHub API endpoint
		token:   token,                           // API token
		owner:   owner,                           // Repository owner
		repo:    repo,                            // Repository name
		branch:  branch,                          // Database branch
		http:    &http.Client{Timeout: 15 * time.Second}, // The original had no timeout at all
	}
}

// fileURL builds the contents API URL for a named blob
func (c *Client) fileURL(name string) string {
	return c.BaseURL + "/repos/" + c.owner + "/" + c.repo + "/contents/db/" + name + ".json"
}

// contentsResponse is the subset of the contents API response we need
type contentsResponse struct {
	Content string `json:"content"` // Base64-encoded file content
	SHA     string `json:"sha"`     // Revision of the file
}

// putPayload is the request body for a contents API write
type putPayload struct {
	Message string `json:"message"`       // Commit message
	Content string `json:"content"`       // Base64-encoded file content
	Branch  string `json:"branch"`        // Target branch
	SHA     string `json:"sha,omitempty"` // Revision precondition, if known
}

// authorize sets the auth and accept headers on a request
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}

// Load fetches a named blob and decodes its JSON payload into dest.
// A missing blob is not an error: dest is left empty and the revision
// is "" (fresh-start policy). Transport failures degrade the same way,
// logged, so the service can come up with empty state.
func (c *Client) Load(ctx context.Context, name string, dest any) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(name), nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to build blob load request")
		return ""
	}
	c.authorize(req)               // Set auth headers
	res, err := c.http.Do(req)     // Fetch the blob
	if err != nil {
		// Transport failure degrades to an empty mapping
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to load blob, starting empty")
		return ""
	}
	defer res.Body.Close()
	// A missing blob means "start fresh", not an error
	if res.StatusCode == http.StatusNotFound {
		logrus.WithField("blob", name).Info("Blob not found, starting fresh")
		return ""
	}
	// Any other non-2xx status also degrades to empty
	if res.StatusCode < 200 || res.StatusCode > 299 {
		logrus.WithFields(logrus.Fields{"blob": name, "status": res.StatusCode}).Error("Unexpected status loading blob, starting empty")
		return ""
	}
	var body contentsResponse // Decode the API envelope
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to decode blob envelope")
		return ""
	}
	// The file content itself is base64-encoded JSON
	raw, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to decode blob content")
		return ""
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to unmarshal blob payload")
		return ""
	}
	return body.SHA // Revision for later conditional writes
}

// Save serializes data as JSON and writes it back as the blob's full
// content, passing the last known revision as a precondition when set.
// It returns the new revision on success. A stale revision surfaces as
// ErrRevisionConflict so the caller can refresh and retry; any other
// failure is logged and the previous revision is returned unchanged,
// leaving in-memory state authoritative.
func (c *Client) Save(ctx context.Context, name string, data any, sha string) (string, error) {
	raw, err := json.Marshal(data) // Serialize the full mapping
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to marshal blob payload")
		return sha, nil
	}
	payload := putPayload{
		Message: "update " + name,                       // Commit message
		Content: base64.StdEncoding.EncodeToString(raw), // Base64 content
		Branch:  c.branch,                               // Target branch
		SHA:     sha,                                    // Revision precondition
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to marshal blob write request")
		return sha, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.fileURL(name), bytes.NewReader(body))
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to build blob save request")
		return sha, nil
	}
	c.authorize(req) // Set auth headers
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req) // Write the blob
	if err != nil {
		// Caller proceeds with in-memory state; remote may now lag
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to save blob, keeping previous revision")
		return sha, nil
	}
	defer res.Body.Close()
	// 409 is a branch-level conflict, 422 a stale or missing sha;
	// both mean our revision is out of date
	if res.StatusCode == http.StatusConflict || res.StatusCode == http.StatusUnprocessableEntity {
		logrus.WithFields(logrus.Fields{"blob": name, "status": res.StatusCode}).Warn("Blob revision conflict")
		return sha, ErrRevisionConflict
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		logrus.WithFields(logrus.Fields{"blob": name, "status": res.StatusCode}).Error("Unexpected status saving blob, keeping previous revision")
		return sha, nil
	}
	var result struct {
		Content contentsResponse `json:"content"` // Envelope with the new revision
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Error("Failed to decode blob save response")
		return sha, nil
	}
	return result.Content.SHA, nil // New revision for the next write
}
