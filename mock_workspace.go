package main

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

type MockGrant struct {
	Directory string
	User      string
	Level     string
}

type MockWorkspaceAdmin struct {
	*MockObjectClient
	name       string
	users      mapset.Set[string]
	lock       sync.Mutex
	AddedUsers []string
	Dirs       []string
	Grants     []MockGrant
	addUserErr error
	grantErr   error
}

func NewMockWorkspaceAdmin(name string, objects map[string]string, users ...string) *MockWorkspaceAdmin {
	return &MockWorkspaceAdmin{
		MockObjectClient: NewMockObjectClient(objects),
		name:             name,
		users:            mapset.NewSet(users...),
		AddedUsers:       make([]string, 0),
		Dirs:             make([]string, 0),
		Grants:           make([]MockGrant, 0),
	}
}

func (w *MockWorkspaceAdmin) Name() string {
	return w.name
}

func (w *MockWorkspaceAdmin) UserExists(_ context.Context, email string) (bool, error) {
	return w.users.Contains(email), nil
}

func (w *MockWorkspaceAdmin) AddUser(_ context.Context, email string) error {
	if w.addUserErr != nil {
		return w.addUserErr
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.AddedUsers = append(w.AddedUsers, email)
	w.users.Add(email)
	return nil
}

func (w *MockWorkspaceAdmin) Mkdirs(_ context.Context, dirPath string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.Dirs = append(w.Dirs, dirPath)
	return nil
}

func (w *MockWorkspaceAdmin) GrantDirectoryPermission(_ context.Context, dirPath, user, level string) error {
	if w.grantErr != nil {
		return w.grantErr
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.Grants = append(w.Grants, MockGrant{Directory: dirPath, User: user, Level: level})
	return nil
}
