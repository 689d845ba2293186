package tasksync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/taskvoice/pkg/core"
	"github.com/vango-go/taskvoice/pkg/taskcache"
)

const DefaultBaseURL = "https://api.todoist.com/api/v1"

var resourceTypes = `["projects","items"]`

// Command is one write in the remote's batched command format.
type Command struct {
	Type   string         `json:"type"`
	UUID   string         `json:"uuid"`
	TempID string         `json:"temp_id,omitempty"`
	Args   map[string]any `json:"args"`
}

// Result is a decoded sync response.
type Result struct {
	Cursor string
	Delta  taskcache.Delta
	// TempIDs maps command temp ids to the ids the remote assigned.
	TempIDs map[string]string
	// CommandErrors holds failures keyed by command uuid.
	CommandErrors map[string]error
}

// Source performs one sync round trip.
type Source interface {
	Sync(ctx context.Context, cursor string, commands []Command) (Result, error)
}

// Remote talks to the Todoist sync endpoint.
type Remote struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type RemoteOption func(*Remote)

func WithBaseURL(baseURL string) RemoteOption {
	return func(r *Remote) {
		if strings.TrimSpace(baseURL) != "" {
			r.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func NewRemote(apiKey string, opts ...RemoteOption) *Remote {
	r := &Remote{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type wireDue struct {
	Date   string `json:"date"`
	String string `json:"string"`
}

type wireProject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
	IsDeleted  bool   `json:"is_deleted"`
	IsArchived bool   `json:"is_archived"`
}

type wireItem struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	ProjectID string   `json:"project_id"`
	Priority  int      `json:"priority"`
	Due       *wireDue `json:"due"`
	Checked   bool     `json:"checked"`
	IsDeleted bool     `json:"is_deleted"`
}

type syncResponse struct {
	SyncToken     string                     `json:"sync_token"`
	FullSync      bool                       `json:"full_sync"`
	Projects      []wireProject              `json:"projects"`
	Items         []wireItem                 `json:"items"`
	SyncStatus    map[string]json.RawMessage `json:"sync_status"`
	TempIDMapping map[string]string          `json:"temp_id_mapping"`
}

type commandError struct {
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

func (r *Remote) Sync(ctx context.Context, cursor string, commands []Command) (Result, error) {
	if cursor == "" {
		cursor = taskcache.InitialCursor
	}
	form := url.Values{}
	form.Set("sync_token", cursor)
	form.Set("resource_types", resourceTypes)
	if len(commands) > 0 {
		body, err := json.Marshal(commands)
		if err != nil {
			return Result{}, fmt.Errorf("encode commands: %w", err)
		}
		form.Set("commands", string(body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/sync", strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Result{}, core.TransportError("todoist", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, core.StatusError("todoist", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode sync response: %w", err)
	}
	if decoded.SyncToken == "" {
		return Result{}, fmt.Errorf("sync response missing sync_token")
	}
	return decoded.result(), nil
}

func (s syncResponse) result() Result {
	res := Result{
		Cursor:  s.SyncToken,
		Delta:   taskcache.Delta{Full: s.FullSync},
		TempIDs: s.TempIDMapping,
	}
	for _, p := range s.Projects {
		if p.IsDeleted || p.IsArchived {
			res.Delta.RemovedProjects = append(res.Delta.RemovedProjects, p.ID)
			continue
		}
		res.Delta.Projects = append(res.Delta.Projects, taskcache.Project{ID: p.ID, Name: p.Name, Favorite: p.IsFavorite})
	}
	for _, it := range s.Items {
		if it.IsDeleted || it.Checked {
			res.Delta.RemovedItems = append(res.Delta.RemovedItems, it.ID)
			continue
		}
		item := taskcache.Item{ID: it.ID, Content: it.Content, ProjectID: it.ProjectID, Priority: it.Priority}
		if it.Due != nil {
			item.Due = &taskcache.Due{Date: it.Due.Date, String: it.Due.String}
		}
		res.Delta.Items = append(res.Delta.Items, item)
	}
	for id, raw := range s.SyncStatus {
		var ok string
		if json.Unmarshal(raw, &ok) == nil && ok == "ok" {
			continue
		}
		var ce commandError
		if err := json.Unmarshal(raw, &ce); err != nil || ce.Error == "" {
			ce.Error = strings.TrimSpace(string(raw))
		}
		if res.CommandErrors == nil {
			res.CommandErrors = make(map[string]error)
		}
		res.CommandErrors[id] = fmt.Errorf("todoist command failed (%d): %s", ce.ErrorCode, ce.Error)
	}
	return res
}
