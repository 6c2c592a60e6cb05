package service

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"

	"tandem-api/internal/repo"
)

var (
	ErrUnauthorized     = errors.New("actor not authorized for this action")
	ErrNotCommentAuthor = errors.New("only the comment author may edit it")

	ErrTaskNotFound    = repo.ErrTaskNotFound
	ErrCommentNotFound = repo.ErrCommentNotFound
	ErrProjectNotFound = repo.ErrProjectNotFound
	ErrMemberNotFound  = repo.ErrMemberNotFound
	ErrMemberExists    = repo.ErrMemberExists
	ErrLastAdmin       = repo.ErrLastAdmin
	ErrVersionConflict = repo.ErrVersionConflict
)

// generateID creates a cuid-like ID compatible with the existing data set.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "c" + strings.ToLower(base32.StdEncoding.EncodeToString(b)[:24])
}
