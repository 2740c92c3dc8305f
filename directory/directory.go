//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks

// Package directory is the read-only port towards the platform's user
// directory and presence collaborator. The messaging core never creates,
// updates or deletes accounts; it only resolves identities and presence.
package directory

import (
	"context"

	"courier/domain"
)

type IDirectory interface {
	// CurrentUser resolves the identity of an authenticated user id.
	CurrentUser(ctx context.Context, userID string) (domain.User, error)
	// LookupUsers lists every directory user except excludingID, with
	// presence attached.
	LookupUsers(ctx context.Context, excludingID string) ([]domain.User, error)
	// Exists reports whether the directory knows the given id.
	Exists(ctx context.Context, userID string) (bool, error)
}
