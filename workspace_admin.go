package main

import (
	"context"
	"fmt"
)

type scimUser struct {
	Schemas      []string          `json:"schemas,omitempty"`
	ID           string            `json:"id,omitempty"`
	UserName     string            `json:"userName"`
	Entitlements []scimEntitlement `json:"entitlements,omitempty"`
}

type scimEntitlement struct {
	Value string `json:"value"`
}

type scimListResponse struct {
	TotalResults int        `json:"totalResults"`
	Resources    []scimUser `json:"Resources"`
}

type accessControl struct {
	UserName        string `json:"user_name"`
	PermissionLevel string `json:"permission_level"`
}

type permissionsRequest struct {
	AccessControlList []accessControl `json:"access_control_list"`
}

func (w *WorkspaceClient) UserExists(ctx context.Context, email string) (bool, error) {
	var users scimListResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("userName eq '%s'", email)).
		SetSuccessResult(&users).
		Get(v2ScimUsers)
	if err := handleAPIError(resp, err, "scim users lookup "+email); err != nil {
		return false, err
	}

	return len(users.Resources) > 0, nil
}

func (w *WorkspaceClient) AddUser(ctx context.Context, email string) error {
	body := scimUser{
		Schemas:      []string{scimUserSchema},
		UserName:     email,
		Entitlements: []scimEntitlement{{Value: entitlementClusterOK}},
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(&body).
		Post(v2ScimUsers)

	return handleAPIError(resp, err, "scim add user "+email)
}

// GrantDirectoryPermission adds a single ACL entry to the directory at
// dirPath. The permissions API merges entries on PATCH, so granting the same
// level twice leaves the ACL unchanged.
func (w *WorkspaceClient) GrantDirectoryPermission(ctx context.Context, dirPath, user, level string) error {
	status, err := w.Status(ctx, dirPath)
	if err != nil {
		return err
	}
	if status.ObjectType != objectTypeDirectory {
		return fmt.Errorf("%s is a %s, not a directory", dirPath, status.ObjectType)
	}

	body := permissionsRequest{
		AccessControlList: []accessControl{{UserName: user, PermissionLevel: level}},
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(&body).
		Patch(fmt.Sprintf(v2DirPermissions, status.ObjectID))

	return handleAPIError(resp, err, "grant "+level+" on "+dirPath+" to "+user)
}
