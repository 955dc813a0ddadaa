package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/valet-ai/valet/internal/logging"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	docMimeType    = "application/vnd.google-apps.document"

	// driveRootAlias is the Drive API's alias for the account root.
	driveRootAlias = "root"
)

// DriveStore is the production RemoteStore backed by Google Drive v3.
type DriveStore struct {
	svc    *drive.Service
	wsName string
	wsID   string
	log    *logging.Logger
}

// NewDriveStore wraps an authenticated Drive service. workspaceName is
// the managed folder documents are copied into before editing.
func NewDriveStore(svc *drive.Service, workspaceName string) *DriveStore {
	return &DriveStore{
		svc:    svc,
		wsName: workspaceName,
		log:    logging.Global().WithComponent("drive"),
	}
}

// Find returns non-trashed files whose name contains nameQuery.
func (d *DriveStore) Find(ctx context.Context, nameQuery string) ([]Candidate, error) {
	query := fmt.Sprintf("name contains '%s' and trashed = false and mimeType != '%s'",
		escapeQuery(nameQuery), folderMimeType)

	var out []Candidate
	pageToken := ""
	for {
		call := d.svc.Files.List().Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, parents)").
			PageSize(50)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		for _, f := range list.Files {
			filePath, inWS := d.resolvePath(ctx, f)
			out = append(out, Candidate{
				ID:          f.Id,
				Name:        f.Name,
				MimeType:    f.MimeType,
				Path:        filePath,
				InWorkspace: inWS,
			})
		}
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// resolvePath walks the parent chain up to the root. A broken chain
// degrades to the bare file name rather than failing the lookup.
func (d *DriveStore) resolvePath(ctx context.Context, f *drive.File) (string, bool) {
	segments := []string{f.Name}
	inWorkspace := false

	parentID := firstParent(f.Parents)
	for depth := 0; parentID != "" && depth < 32; depth++ {
		parent, err := d.svc.Files.Get(parentID).Context(ctx).
			Fields("id, name, parents").Do()
		if err != nil {
			d.log.Debug("resolve parent %s: %v", parentID, err)
			break
		}
		if d.wsID != "" && parent.Id == d.wsID {
			inWorkspace = true
		}
		if len(parent.Parents) == 0 {
			break
		}
		segments = append([]string{parent.Name}, segments...)
		parentID = firstParent(parent.Parents)
	}
	return path.Join(segments...), inWorkspace
}

func firstParent(parents []string) string {
	if len(parents) == 0 {
		return ""
	}
	return parents[0]
}

// Read returns a file's text content. Workspace-format documents are
// exported as plain text; everything else is downloaded as-is.
func (d *DriveStore) Read(ctx context.Context, id, mimeType string) (string, error) {
	var resp *http.Response
	var err error
	if strings.HasPrefix(mimeType, "application/vnd.google-apps.") {
		resp, err = d.svc.Files.Export(id, "text/plain").Context(ctx).Download()
	} else {
		resp, err = d.svc.Files.Get(id).Context(ctx).Download()
	}
	if err != nil {
		return "", translateDriveError("read document", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read document body: %w", err)
	}
	return string(body), nil
}

// Create makes a new empty markdown file inside containerID.
func (d *DriveStore) Create(ctx context.Context, name, containerID string) (*Document, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: "text/markdown",
		Parents:  []string{containerID},
	}
	created, err := d.svc.Files.Create(meta).Context(ctx).
		Media(strings.NewReader("")).
		Fields("id, name, mimeType").Do()
	if err != nil {
		return nil, translateDriveError("create document", err)
	}
	return &Document{ID: created.Id, Name: created.Name, MimeType: created.MimeType}, nil
}

// CopyInto duplicates a file into containerID and returns the copy
// with its content loaded.
func (d *DriveStore) CopyInto(ctx context.Context, id, mimeType, name, containerID string) (*Document, error) {
	meta := &drive.File{
		Name:    name,
		Parents: []string{containerID},
	}
	copied, err := d.svc.Files.Copy(id, meta).Context(ctx).
		Fields("id, name, mimeType").Do()
	if err != nil {
		return nil, translateDriveError("copy document", err)
	}
	content, err := d.Read(ctx, copied.Id, copied.MimeType)
	if err != nil {
		return nil, err
	}
	return &Document{ID: copied.Id, Name: copied.Name, MimeType: copied.MimeType, Content: content}, nil
}

// Write replaces a file's content.
func (d *DriveStore) Write(ctx context.Context, id, content string) error {
	_, err := d.svc.Files.Update(id, &drive.File{}).Context(ctx).
		Media(strings.NewReader(content)).Do()
	if err != nil {
		return translateDriveError("write document", err)
	}
	return nil
}

// Children lists a container's immediate non-trashed entries, folders
// before files, each group alphabetical.
func (d *DriveStore) Children(ctx context.Context, containerID string) ([]Entry, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(containerID))

	var out []Entry
	pageToken := ""
	for {
		call := d.svc.Files.List().Context(ctx).
			Q(query).
			OrderBy("folder,name").
			Fields("nextPageToken, files(id, name, mimeType)").
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, translateDriveError("list container", err)
		}
		for _, f := range list.Files {
			kind := KindFile
			if f.MimeType == folderMimeType {
				kind = KindFolder
			}
			out = append(out, Entry{ID: f.Id, Name: f.Name, Kind: kind})
		}
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// ModifiedTime returns a file's last-modified timestamp.
func (d *DriveStore) ModifiedTime(ctx context.Context, id string) (time.Time, error) {
	f, err := d.svc.Files.Get(id).Context(ctx).Fields("modifiedTime").Do()
	if err != nil {
		return time.Time{}, translateDriveError("get modified time", err)
	}
	return time.Parse(time.RFC3339, f.ModifiedTime)
}

// AccountInfo returns the authenticated user's display name and email.
func (d *DriveStore) AccountInfo(ctx context.Context, userID string) (string, string, error) {
	about, err := d.svc.About.Get().Context(ctx).Fields("user").Do()
	if err != nil {
		return "", "", fmt.Errorf("get account info: %w", err)
	}
	return about.User.DisplayName, about.User.EmailAddress, nil
}

// RootID returns the Drive root alias.
func (d *DriveStore) RootID() string {
	return driveRootAlias
}

// WorkspaceID returns the managed workspace folder id, creating the
// folder under the root on first use.
func (d *DriveStore) WorkspaceID(ctx context.Context) (string, error) {
	if d.wsID != "" {
		return d.wsID, nil
	}

	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and 'root' in parents and trashed = false",
		escapeQuery(d.wsName), folderMimeType)
	list, err := d.svc.Files.List().Context(ctx).Q(query).Fields("files(id)").PageSize(1).Do()
	if err != nil {
		return "", fmt.Errorf("find workspace: %w", err)
	}
	if len(list.Files) > 0 {
		d.wsID = list.Files[0].Id
		return d.wsID, nil
	}

	created, err := d.svc.Files.Create(&drive.File{
		Name:     d.wsName,
		MimeType: folderMimeType,
		Parents:  []string{driveRootAlias},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	d.log.Info("created workspace folder %q", d.wsName)
	d.wsID = created.Id
	return d.wsID, nil
}

// escapeQuery escapes single quotes and backslashes for Drive query
// string literals.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// translateDriveError maps API errors onto the package's taxonomy.
func translateDriveError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// DriveGranter implements Granter with the OAuth loopback flow. The
// handle is the serialized refresh token.
type DriveGranter struct {
	oauth   *oauth2.Config
	wsName  string
	log     *logging.Logger
	notify  func(url string)
	timeout time.Duration
}

// NewDriveGranter builds a granter for the given OAuth client. notify
// receives the consent URL the user must open; nil logs it instead.
func NewDriveGranter(clientID, clientSecret, workspaceName string, notify func(url string)) *DriveGranter {
	g := &DriveGranter{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			// One grant covers the document store and the read-only
			// domain summaries sharing the account.
			Scopes: []string{
				drive.DriveScope,
				"https://www.googleapis.com/auth/tasks.readonly",
				"https://www.googleapis.com/auth/calendar.readonly",
				"https://www.googleapis.com/auth/gmail.readonly",
			},
			Endpoint: google.Endpoint,
		},
		wsName:  workspaceName,
		log:     logging.Global().WithComponent("drive-auth"),
		notify:  notify,
		timeout: 3 * time.Minute,
	}
	if g.notify == nil {
		g.notify = func(url string) { g.log.Info("open to authorize: %s", url) }
	}
	return g
}

// Client builds an authenticated HTTP client from a stored token
// handle, for sibling Google services sharing the grant.
func (g *DriveGranter) Client(ctx context.Context, handle string) (*http.Client, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(handle), &token); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	return oauth2.NewClient(ctx, g.oauth.TokenSource(ctx, &token)), nil
}

// Restore rebuilds a Drive service from a stored token handle and
// verifies it with a lightweight API call.
func (g *DriveGranter) Restore(ctx context.Context, handle string) (RemoteStore, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(handle), &token); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(g.oauth.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("build drive service: %w", err)
	}
	if _, err := svc.About.Get().Context(ctx).Fields("user").Do(); err != nil {
		return nil, fmt.Errorf("validate stored token: %w", err)
	}
	return NewDriveStore(svc, g.wsName), nil
}

// Acquire runs the loopback consent flow: a local listener receives
// the redirect, the code is exchanged, and the token becomes the new
// handle. Context cancellation maps to ErrCancelled.
func (g *DriveGranter) Acquire(ctx context.Context) (string, RemoteStore, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("start redirect listener: %w", err)
	}
	defer listener.Close()

	cfg := *g.oauth
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr().String())
	state := fmt.Sprintf("valet-%d", time.Now().UnixNano())

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- ErrDenied
			return
		}
		if denial := r.URL.Query().Get("error"); denial != "" {
			fmt.Fprintln(w, "Access was not granted. You can close this window.")
			errCh <- fmt.Errorf("%w: %s", ErrDenied, denial)
			return
		}
		fmt.Fprintln(w, "Access granted. You can close this window.")
		codeCh <- r.URL.Query().Get("code")
	})}
	go srv.Serve(listener)
	defer srv.Close()

	g.notify(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return "", nil, err
	case <-ctx.Done():
		return "", nil, ErrCancelled
	case <-time.After(g.timeout):
		return "", nil, ErrCancelled
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange auth code: %w", err)
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return "", nil, fmt.Errorf("encode token: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return "", nil, fmt.Errorf("build drive service: %w", err)
	}
	return string(raw), NewDriveStore(svc, g.wsName), nil
}
