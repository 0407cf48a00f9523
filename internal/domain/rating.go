package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies which table a rating's parent lives in.
type Kind string

const (
	KindComment  Kind = "comment"
	KindFolder   Kind = "folder"
	KindSoftware Kind = "software"
)

// Kinds lists every rateable kind in a stable order.
var Kinds = []Kind{KindComment, KindFolder, KindSoftware}

// ErrInvalidParent is returned when a rating does not name exactly one parent.
var ErrInvalidParent = errors.New("exactly one of commentId, folderId or softwareId is required")

// ParseKind validates a kind name.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindComment, KindFolder, KindSoftware:
		return k, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", raw)
	}
}

// Title returns the capitalized kind name used in response messages.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// ParentRef points a rating at exactly one rateable entity.
type ParentRef struct {
	Kind Kind
	ID   string
}

// ParentRefFromIDs builds a ParentRef from the three optional id fields of a
// rating request. Exactly one of them must be non-empty.
func ParentRefFromIDs(commentID, folderID, softwareID *string) (ParentRef, error) {
	var (
		ref   ParentRef
		found int
	)
	candidates := []struct {
		kind Kind
		id   *string
	}{
		{KindComment, commentID},
		{KindFolder, folderID},
		{KindSoftware, softwareID},
	}
	for _, c := range candidates {
		if c.id == nil || strings.TrimSpace(*c.id) == "" {
			continue
		}
		found++
		ref = ParentRef{Kind: c.kind, ID: strings.TrimSpace(*c.id)}
	}
	if found != 1 {
		return ParentRef{}, ErrInvalidParent
	}
	return ref, nil
}

// IDs splits the ref back into the three optional id fields.
func (p ParentRef) IDs() (commentID, folderID, softwareID *string) {
	id := p.ID
	switch p.Kind {
	case KindComment:
		commentID = &id
	case KindFolder:
		folderID = &id
	case KindSoftware:
		softwareID = &id
	}
	return commentID, folderID, softwareID
}

func (p ParentRef) String() string {
	return string(p.Kind) + " " + p.ID
}

// Rating is a single user's score for one comment, folder or software entry.
type Rating struct {
	ID        string
	AuthorID  string
	Score     int
	Parent    ParentRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a parent's ratings.
// Average is nil when the parent has no ratings.
type RatingAggregate struct {
	Average *float64
	Count   int64
}
