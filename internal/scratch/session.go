package scratch

import (
	"bytes"         // Request bodies
	"context"       // Context for HTTP requests
	"encoding/json" // API payloads
	"errors"        // Login failures
	"net/http"      // Scratch web API client
	"strconv"       // User comment endpoint
	"time"          // Request timeout

	"github.com/sirupsen/logrus" // Logging library
)

// ErrLoginFailed is returned when the service account cannot
// authenticate
var ErrLoginFailed = errors.New("scratch: login failed")

// Session is an authenticated service-account session on the Scratch
// website, used for the cloud websocket handshake and for posting
// profile comments.
type Session struct {
	BaseURL   string // Site base, overridable for tests
	Username  string // Service account username
	sessionID string // Session cookie value
	token     string // API token for authenticated calls
	http      *http.Client
}

// Login authenticates the service account and returns a session
func Login(ctx context.Context, baseURL, username, password string) (*Session, error) {
	s := &Session{
		BaseURL:  baseURL,  // Site base URL
		Username: username, // Service account
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	body, err := json.Marshal(map[string]any{
		"username":    username, // Account name
		"password":    password, // Shared secret
		"useMessages": true,     // Matches the site login form
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/login/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	// The login endpoint wants a placeholder CSRF cookie pair
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", "a")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", "scratchcsrftoken=a;scratchlanguage=en;")
	req.Header.Set("Referer", s.BaseURL)
	res, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ErrLoginFailed
	}
	var result []struct {
		Token string `json:"token"` // API token for the session
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil || len(result) == 0 || result[0].Token == "" {
		return nil, ErrLoginFailed
	}
	s.token = result[0].Token
	// The session id arrives as a cookie
	for _, c := range res.Cookies() {
		if c.Name == "scratchsessionsid" {
			s.sessionID = c.Value
		}
	}
	if s.sessionID == "" {
		return nil, ErrLoginFailed
	}
	logrus.WithField("user", username).Info("Scratch session established")
	return s, nil
}

// cookieHeader builds the cookie string authenticated calls send
func (s *Session) cookieHeader() string {
	return "scratchsessionsid=" + s.sessionID + ";scratchcsrftoken=a;scratchlanguage=en;"
}

// PostComment posts a comment on a user's profile page
func (s *Session) PostComment(ctx context.Context, user, content string) error {
	body, err := json.Marshal(map[string]string{
		"content":      content, // Comment text
		"parent_id":    "",      // Top-level comment
		"commentee_id": "",      // No reply target
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/site-api/comments/user/"+user+"/add/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", "a")
	req.Header.Set("X-Token", s.token)
	req.Header.Set("Cookie", s.cookieHeader())
	req.Header.Set("Referer", s.BaseURL+"/users/"+user+"/")
	res, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.New("scratch: comment rejected with status " + strconv.Itoa(res.StatusCode))
	}
	return nil
}
