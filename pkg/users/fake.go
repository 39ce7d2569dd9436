// pkg/users/fake.go - in-memory DirectoryService for tests.

package users

import (
	"context"
	"fmt"
)

// FakeDirectory satisfies DirectoryService from fixed data.
type FakeDirectory struct {
	Console    string
	ConsoleErr error
	Homes      map[string]string
	Users      []User
	ListErr    error
}

// ConsoleUser implements DirectoryService.
func (f *FakeDirectory) ConsoleUser() (string, error) {
	if f.ConsoleErr != nil {
		return "", f.ConsoleErr
	}
	return f.Console, nil
}

// Home implements DirectoryService.
func (f *FakeDirectory) Home(_ context.Context, username string) (string, error) {
	home, ok := f.Homes[username]
	if !ok {
		return "", fmt.Errorf("no home directory for %s", username)
	}
	return home, nil
}

// LocalUsers implements DirectoryService.
func (f *FakeDirectory) LocalUsers(_ context.Context) ([]User, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Users, nil
}
