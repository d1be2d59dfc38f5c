package trackapi

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
	"github.com/openmined/trackd/internal/models"
)

// scope resolves the collection endpoint a record is written to
type scope[T any] func(entity T) string

func rootScoped(models.Workspace) string {
	return v9Workspaces
}

func workspaceScoped[T models.Entity[T]](workspaceID func(T) int64) scope[T] {
	return func(entity T) string {
		return fmt.Sprintf(v9WorkspaceRes, workspaceID(entity), entity.Kind())
	}
}

func taskScoped(task models.Task) string {
	return fmt.Sprintf(v9WorkspaceRes, task.WorkspaceID, fmt.Sprintf("projects/%d/tasks", task.ProjectID))
}

// EntityAPI lists and writes one kind of record
type EntityAPI[T models.Entity[T]] struct {
	client *req.Client
	kind   models.Kind
	scope  scope[T]
}

func newEntityAPI[T models.Entity[T]](client *req.Client, kind models.Kind, scope scope[T]) *EntityAPI[T] {
	return &EntityAPI[T]{
		client: client,
		kind:   kind,
		scope:  scope,
	}
}

// List fetches every record of this kind visible to the user
func (e *EntityAPI[T]) List(ctx context.Context) ([]T, error) {
	var entities []T
	resp, err := e.client.R().
		SetContext(ctx).
		SetSuccessResult(&entities).
		Get(fmt.Sprintf(v9MeResource, e.kind))

	if err := handleAPIError(ctx, e.client, resp, err, "list "+string(e.kind)); err != nil {
		return nil, err
	}

	for i := range entities {
		entities[i] = entities[i].WithSync(models.InSync())
	}
	return entities, nil
}

// Create sends a record created locally. The returned record carries the
// server assigned ID.
func (e *EntityAPI[T]) Create(ctx context.Context, entity T) (T, error) {
	var created T
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(entity).
		SetSuccessResult(&created).
		Post(e.scope(entity))

	if err := handleAPIError(ctx, e.client, resp, err, "create "+string(e.kind)); err != nil {
		var zero T
		return zero, err
	}
	return created.WithSync(models.InSync()), nil
}

// Update sends the local version of an existing record
func (e *EntityAPI[T]) Update(ctx context.Context, entity T) (T, error) {
	var updated T
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(entity).
		SetSuccessResult(&updated).
		Put(fmt.Sprintf("%s/%d", e.scope(entity), entity.EntityID()))

	if err := handleAPIError(ctx, e.client, resp, err, "update "+string(e.kind)); err != nil {
		var zero T
		return zero, err
	}
	return updated.WithSync(models.InSync()), nil
}

// Push creates or updates entity depending on whether the server knows it yet
func (e *EntityAPI[T]) Push(ctx context.Context, entity T) (T, error) {
	if entity.EntityID() < 0 {
		return e.Create(ctx, entity)
	}
	return e.Update(ctx, entity)
}

// UserAPI reads and updates the authenticated user
type UserAPI struct {
	client *req.Client
}

func (u *UserAPI) Get(ctx context.Context) (*models.User, error) {
	var user models.User
	resp, err := u.client.R().
		SetContext(ctx).
		SetSuccessResult(&user).
		Get(v9Me)

	if err := handleAPIError(ctx, u.client, resp, err, "get user"); err != nil {
		return nil, err
	}
	user.SyncMeta = models.InSync()
	return &user, nil
}

func (u *UserAPI) Update(ctx context.Context, user models.User) (*models.User, error) {
	var updated models.User
	resp, err := u.client.R().
		SetContext(ctx).
		SetBody(user).
		SetSuccessResult(&updated).
		Put(v9Me)

	if err := handleAPIError(ctx, u.client, resp, err, "update user"); err != nil {
		return nil, err
	}
	updated.SyncMeta = models.InSync()
	return &updated, nil
}
