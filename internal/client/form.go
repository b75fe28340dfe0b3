// Package client drives the registration page over HTTP the way the browser
// script does: load the page for its token, fill a draft, submit it once.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	submitPath   = "backend"
	rootID       = "app"
	tokenAttr    = "data-csrf-token"
	maxBodyBytes = 1 << 20
)

var ErrTokenNotFound = errors.New("csrf token not found in page")

type Field string

const (
	FieldUsername Field = "username"
	FieldName     Field = "name"
	FieldLastName Field = "last_name"
	FieldEmail    Field = "email"
	FieldPassword Field = "password"
)

// Fields lists the user-editable fields in form order.
var Fields = []Field{FieldUsername, FieldName, FieldLastName, FieldEmail, FieldPassword}

// Draft is the in-progress registration. The token comes from the rendered page.
type Draft struct {
	Username  string
	Name      string
	LastName  string
	Email     string
	Password  string
	CSRFToken string
}

// Result mirrors the JSON body returned by the submission endpoint.
type Result struct {
	Success        bool   `json:"success"`
	SuccessMessage string `json:"success_message"`
	ErrorMessage   string `json:"error_message"`
}

// Notifier presents outcomes. Success blocks until the user acknowledges it;
// Error is transient.
type Notifier interface {
	Success(ctx context.Context, message string) error
	Error(message string)
}

type Form struct {
	base     *url.URL
	http     *http.Client
	notifier Notifier
	draft    Draft
}

// NewForm targets the page at baseURL. A nil httpClient gets a default client
// with a cookie jar so the session survives between Load and Submit.
func NewForm(baseURL string, notifier Notifier, httpClient *http.Client) (*Form, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 15 * time.Second}
	}

	return &Form{base: base, http: httpClient, notifier: notifier}, nil
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() Draft {
	return f.draft
}

// Load fetches the page and starts a fresh draft bound to its token.
func (f *Form) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("load page: unexpected status %s", resp.Status)
	}

	token, err := extractToken(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	f.draft = Draft{CSRFToken: token}
	return nil
}

// Set updates one field of the draft.
func (f *Form) Set(field Field, value string) error {
	switch field {
	case FieldUsername:
		f.draft.Username = value
	case FieldName:
		f.draft.Name = value
	case FieldLastName:
		f.draft.LastName = value
	case FieldEmail:
		f.draft.Email = value
	case FieldPassword:
		f.draft.Password = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

// Submit sends the draft as one request and reports the outcome through the
// notifier. The draft is cleared only after a success is acknowledged.
func (f *Form) Submit(ctx context.Context) (Result, error) {
	res, err := f.post(ctx)
	if err != nil {
		f.notifier.Error(err.Error())
		return Result{}, err
	}

	if !res.Success {
		f.notifier.Error(res.ErrorMessage)
		return res, nil
	}

	if err := f.notifier.Success(ctx, res.SuccessMessage); err != nil {
		return res, fmt.Errorf("acknowledge success: %w", err)
	}
	f.draft = Draft{CSRFToken: f.draft.CSRFToken}
	return res, nil
}

func (f *Form) post(ctx context.Context) (Result, error) {
	values := url.Values{
		"csrf_token":          {f.draft.CSRFToken},
		string(FieldUsername): {f.draft.Username},
		string(FieldName):     {f.draft.Name},
		string(FieldLastName): {f.draft.LastName},
		string(FieldEmail):    {f.draft.Email},
		string(FieldPassword): {f.draft.Password},
	}
	endpoint := f.base.ResolveReference(&url.URL{Path: submitPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("submit registration: %w", err)
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !res.Success && res.ErrorMessage == "" {
		return Result{}, fmt.Errorf("empty response (status %d)", resp.StatusCode)
	}
	return res, nil
}

func extractToken(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var walk func(*html.Node) (string, bool)
	walk = func(n *html.Node) (string, bool) {
		if n.Type == html.ElementNode && attr(n, "id") == rootID {
			token := attr(n, tokenAttr)
			return token, token != ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if token, ok := walk(c); ok {
				return token, true
			}
		}
		return "", false
	}

	token, ok := walk(doc)
	if !ok {
		return "", ErrTokenNotFound
	}
	return token, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
