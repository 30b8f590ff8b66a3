package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"
)

const (
	v2WorkspaceList      = "/api/2.0/workspace/list"
	v2WorkspaceStatus    = "/api/2.0/workspace/get-status"
	v2WorkspaceExport    = "/api/2.0/workspace/export"
	v2WorkspaceImport    = "/api/2.0/workspace/import"
	v2WorkspaceMkdirs    = "/api/2.0/workspace/mkdirs"
	v2ScimUsers          = "/api/2.0/preview/scim/v2/Users"
	v2DirPermissions     = "/api/2.0/permissions/directories/%d"
	v2ClustersList       = "/api/2.0/clusters/list"
	v2ClustersCreate     = "/api/2.0/clusters/create"
	formatSource         = "SOURCE"
	formatAuto           = "AUTO"
	defaultLanguage      = "PYTHON"
	objectTypeNotebook   = "NOTEBOOK"
	objectTypeFile       = "FILE"
	objectTypeDirectory  = "DIRECTORY"
	objectTypeRepo       = "REPO"
	userAgent            = "wssync/1.0"
	retryBackoffMin      = 500 * time.Millisecond
	retryBackoffMax      = 5 * time.Second
	scimUserSchema       = "urn:ietf:params:scim:schemas:core:2.0:User"
	entitlementClusterOK = "allow-cluster-create"
)

type workspaceObject struct {
	Path       string `json:"path"`
	ObjectType string `json:"object_type"`
	Language   string `json:"language,omitempty"`
	ObjectID   int64  `json:"object_id,omitempty"`
}

type listResponse struct {
	Objects []workspaceObject `json:"objects"`
}

type exportResponse struct {
	Content string `json:"content"`
}

type importRequest struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Language  string `json:"language,omitempty"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

type pathRequest struct {
	Path string `json:"path"`
}

// WorkspaceClient talks to the workspace REST API of a single workspace.
type WorkspaceClient struct {
	ref     WorkspaceRef
	client  *req.Client
	created mapset.Set[string]
}

func NewWorkspaceClient(ref WorkspaceRef, timeout time.Duration, retries int) *WorkspaceClient {
	client := newAPIClient(ref.BaseURL, timeout, retries).
		SetCommonBearerAuthToken(ref.Credential)

	return &WorkspaceClient{
		ref:     ref,
		client:  client,
		created: mapset.NewSet[string](),
	}
}

// newAPIClient is shared by every REST collaborator: JSON through go-json,
// bounded retries on transport errors, 429 and 5xx.
func newAPIClient(baseURL string, timeout time.Duration, retries int) *req.Client {
	return req.C().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetUserAgent(userAgent).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(retries).
		SetCommonRetryBackoffInterval(retryBackoffMin, retryBackoffMax).
		SetCommonRetryCondition(retryable)
}

// retryable leaves timeouts alone: a hung call already used its whole budget.
func retryable(resp *req.Response, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

func (w *WorkspaceClient) Name() string {
	return w.ref.Name
}

func (w *WorkspaceClient) List(ctx context.Context, dirPath string) ([]ObjectHandle, error) {
	var listing listResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParam("path", dirPath).
		SetSuccessResult(&listing).
		Get(v2WorkspaceList)
	if err := handleAPIError(resp, err, "workspace list "+dirPath); err != nil {
		return nil, err
	}

	handles := make([]ObjectHandle, 0, len(listing.Objects))
	for _, obj := range listing.Objects {
		switch obj.ObjectType {
		case objectTypeNotebook, objectTypeFile:
			handles = append(handles, ObjectHandle{Path: obj.Path, Kind: Leaf})
		case objectTypeDirectory, objectTypeRepo:
			handles = append(handles, ObjectHandle{Path: obj.Path, Kind: Container})
		default:
			log.Debug(fmt.Sprintf("ignoring %s of type %s in %s", obj.Path, obj.ObjectType, w.ref.Name))
		}
	}

	return handles, nil
}

// Status returns the workspace object at objPath, or ErrNotFound.
func (w *WorkspaceClient) Status(ctx context.Context, objPath string) (workspaceObject, error) {
	var obj workspaceObject
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParam("path", objPath).
		SetSuccessResult(&obj).
		Get(v2WorkspaceStatus)
	if err := handleAPIError(resp, err, "workspace get-status "+objPath); err != nil {
		return obj, err
	}

	return obj, nil
}

func (w *WorkspaceClient) Read(ctx context.Context, objPath string) (ObjectContent, error) {
	var content ObjectContent

	status, err := w.Status(ctx, objPath)
	if err != nil {
		return content, err
	}
	if status.ObjectType == objectTypeDirectory || status.ObjectType == objectTypeRepo {
		return content, fmt.Errorf("%s is a %s, not an exportable object", objPath, status.ObjectType)
	}

	format := formatSource
	if status.ObjectType == objectTypeFile {
		format = formatAuto
	}
	var exported exportResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"path": objPath, "format": format}).
		SetSuccessResult(&exported).
		Get(v2WorkspaceExport)
	if err := handleAPIError(resp, err, "workspace export "+objPath); err != nil {
		return content, err
	}

	data, err := base64.StdEncoding.DecodeString(exported.Content)
	if err != nil {
		return content, fmt.Errorf("decode export of %s: %w", objPath, err)
	}
	content.Data = data
	content.Language = status.Language

	return content, nil
}

func (w *WorkspaceClient) Write(ctx context.Context, objPath string, content ObjectContent) error {
	if err := w.Mkdirs(ctx, path.Dir(objPath)); err != nil {
		return err
	}

	// plain files carry no language and are imported as-is
	body := importRequest{
		Path:      objPath,
		Format:    formatSource,
		Language:  content.Language,
		Content:   base64.StdEncoding.EncodeToString(content.Data),
		Overwrite: true,
	}
	if content.Language == "" {
		body.Format = formatAuto
	}
	err := w.importObject(ctx, &body)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	// parent removed since it was cached
	log.Debug(fmt.Sprintf("%s missing in %s, recreating", path.Dir(objPath), w.ref.Name))
	w.forgetDirs(path.Dir(objPath))
	if err := w.Mkdirs(ctx, path.Dir(objPath)); err != nil {
		return err
	}
	return w.importObject(ctx, &body)
}

func (w *WorkspaceClient) importObject(ctx context.Context, body *importRequest) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(v2WorkspaceImport)

	return handleAPIError(resp, err, "workspace import "+body.Path)
}

// Mkdirs creates dirPath and its parents. Directories already created by
// this client are not requested again.
func (w *WorkspaceClient) Mkdirs(ctx context.Context, dirPath string) error {
	if dirPath == "" || dirPath == "/" || w.created.Contains(dirPath) {
		return nil
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(&pathRequest{Path: dirPath}).
		Post(v2WorkspaceMkdirs)
	if err := handleAPIError(resp, err, "workspace mkdirs "+dirPath); err != nil {
		return err
	}

	for p := dirPath; p != "/" && p != "."; p = path.Dir(p) {
		w.created.Add(p)
	}

	return nil
}

func (w *WorkspaceClient) forgetDirs(dirPath string) {
	for p := dirPath; p != "/" && p != "."; p = path.Dir(p) {
		w.created.Remove(p)
	}
}
