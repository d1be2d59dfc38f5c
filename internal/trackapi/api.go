package trackapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/utils"
	"github.com/openmined/trackd/internal/version"
)

const (
	HeaderUserAgent     = "User-Agent"
	HeaderClientVersion = "X-Trackd-Version"

	apiTokenPassword = "api_token"
	defaultTimeout   = 30 * time.Second

	v9Me           = "/api/v9/me"
	v9MeResource   = "/api/v9/me/%s"
	v9Workspaces   = "/api/v9/workspaces"
	v9WorkspaceRes = "/api/v9/workspaces/%d/%s"
)

var TrackdUserAgent = fmt.Sprintf("trackd/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Config is the configuration for the API client
type Config struct {
	BaseURL  string        // BaseURL is required
	APIToken string        // APIToken is required
	Timeout  time.Duration // Timeout is optional
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	if c.APIToken == "" {
		return ErrNoAPIToken
	}
	return nil
}

// API is the client for the remote time tracking service
type API struct {
	client *req.Client

	User        *UserAPI
	Workspaces  *EntityAPI[models.Workspace]
	Clients     *EntityAPI[models.Client]
	Projects    *EntityAPI[models.Project]
	Tasks       *EntityAPI[models.Task]
	Tags        *EntityAPI[models.Tag]
	TimeEntries *EntityAPI[models.TimeEntry]
}

// New creates an API client authenticated with the user's api token
func New(cfg *Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout).
		SetCommonBasicAuth(cfg.APIToken, apiTokenPassword)

	return &API{
		client:      client,
		User:        &UserAPI{client: client},
		Workspaces:  newEntityAPI[models.Workspace](client, models.KindWorkspace, rootScoped),
		Clients:     newEntityAPI[models.Client](client, models.KindClient, workspaceScoped(func(c models.Client) int64 { return c.WorkspaceID })),
		Projects:    newEntityAPI[models.Project](client, models.KindProject, workspaceScoped(func(p models.Project) int64 { return p.WorkspaceID })),
		Tasks:       newEntityAPI[models.Task](client, models.KindTask, taskScoped),
		Tags:        newEntityAPI[models.Tag](client, models.KindTag, workspaceScoped(func(t models.Tag) int64 { return t.WorkspaceID })),
		TimeEntries: newEntityAPI[models.TimeEntry](client, models.KindTimeEntry, workspaceScoped(func(t models.TimeEntry) int64 { return t.WorkspaceID })),
	}, nil
}

// Login exchanges email and password for the user record, which carries the
// api token used by every later request.
func Login(ctx context.Context, baseURL string, email string, password string) (*models.User, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	client := newHTTPClient(baseURL, defaultTimeout).
		SetCommonBasicAuth(email, password)

	var user models.User
	resp, err := client.R().
		SetContext(ctx).
		SetSuccessResult(&user).
		Get(v9Me)
	if err := handleAPIError(ctx, client, resp, err, "login"); err != nil {
		return nil, err
	}

	user.SyncMeta = models.InSync()
	return &user, nil
}

func newHTTPClient(baseURL string, timeout time.Duration) *req.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return req.C().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetUserAgent(TrackdUserAgent).
		SetCommonHeader(HeaderClientVersion, version.Version).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
}

// handleAPIError maps a request outcome onto the error taxonomy. A forbidden
// response only counts as unauthorized when the credentials fail a /me check
// too; otherwise the credentials are fine and only this resource is off limits.
func handleAPIError(ctx context.Context, client *req.Client, resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", operation, ctxErr)
		}
		if resp == nil || resp.Response == nil {
			return fmt.Errorf("%w: %s: %v", ErrOffline, operation, requestErr)
		}
		if !resp.IsErrorState() {
			return &DeserializationError{RequestError: requestErrorFor(resp, operation), Err: requestErr}
		}
	}

	if resp == nil || !resp.IsErrorState() {
		return nil
	}

	reqErr := requestErrorFor(resp, operation)
	if resp.StatusCode == http.StatusForbidden {
		loggedIn, err := isLoggedIn(ctx, client)
		if err != nil {
			return err
		}
		if !loggedIn {
			return &UnauthorizedError{reqErr}
		}
	}

	return errorForStatus(reqErr)
}

func isLoggedIn(ctx context.Context, client *req.Client) (bool, error) {
	resp, err := client.R().
		SetContext(ctx).
		Get(v9Me)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, fmt.Errorf("%w: session check: %v", ErrOffline, err)
	}
	return !(resp.StatusCode >= 400 && resp.StatusCode < 500), nil
}

func requestErrorFor(resp *req.Response, operation string) RequestError {
	reqErr := RequestError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       resp.String(),
	}
	if resp.Request != nil && resp.Request.RawRequest != nil {
		reqErr.Method = resp.Request.RawRequest.Method
		reqErr.URL = resp.Request.RawRequest.URL.String()
	}
	return reqErr
}
