package repository

import (
	"context"

	"social-publisher/domain/model"
)

// ILinkStateStore keeps OAuth state tokens between the authorize redirect and the callback.
type ILinkStateStore interface {
	Put(ctx context.Context, attempt *model.LinkAttempt) error
	// Take returns and deletes the attempt. Unknown or expired states yield model.ErrNotFound.
	Take(ctx context.Context, state string) (*model.LinkAttempt, error)
}
