package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/openmined/trackd/internal/client/store"
	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/trackapi"

	csync "github.com/openmined/trackd/internal/client/sync"
)

// Engine is one fully wired sync engine: store, syncer, orchestrator, sync
// manager and the facade on top of them.
type Engine struct {
	DataSource   *DataSource
	Manager      *csync.Manager
	Orchestrator *csync.StateMachineOrchestrator
	Syncer       *Syncer
	Timer        *Timer
}

func NewEngine(st *store.Store, api *trackapi.API, trigger Trigger, errorHandler ErrorHandler) (*Engine, error) {
	if st == nil || api == nil {
		return nil, errors.New("store and api are required")
	}

	syncer := NewSyncer(st.Settings,
		Bind[models.User](userRemote{api.User}, st.Users),
		Bind[models.Workspace](api.Workspaces, st.Workspaces),
		Bind[models.Client](api.Clients, st.Clients),
		Bind[models.Project](api.Projects, st.Projects),
		Bind[models.Task](api.Tasks, st.Tasks),
		Bind[models.Tag](api.Tags, st.Tags),
		Bind[models.TimeEntry](api.TimeEntries, st.TimeEntries),
	)

	orchestrator := csync.NewOrchestrator(syncer.Handlers())
	manager, err := csync.NewManager(csync.NewStateQueue(), orchestrator)
	if err != nil {
		orchestrator.Close()
		return nil, err
	}

	ds, err := New(Deps{
		Repositories: RepositoriesFromStore(st),
		Store:        st,
		Manager:      manager,
		Trigger:      trigger,
		ErrorHandler: errorHandler,
	})
	if err != nil {
		manager.Close()
		orchestrator.Close()
		return nil, err
	}

	return &Engine{
		DataSource:   ds,
		Manager:      manager,
		Orchestrator: orchestrator,
		Syncer:       syncer,
		Timer:        NewTimer(st.Users, st.TimeEntries),
	}, nil
}

// LastSynced returns when a sync run last completed
func (e *Engine) LastSynced(ctx context.Context) (time.Time, error) {
	return e.Syncer.LastSynced(ctx)
}

// Close stops every goroutine of the engine, waiting for an in-flight run
func (e *Engine) Close() {
	e.DataSource.Close()
	e.Manager.Close()
	e.Orchestrator.Close()
}

func RepositoriesFromStore(st *store.Store) Repositories {
	return Repositories{
		Users:       st.Users,
		Workspaces:  st.Workspaces,
		Clients:     st.Clients,
		Projects:    st.Projects,
		Tasks:       st.Tasks,
		Tags:        st.Tags,
		TimeEntries: st.TimeEntries,
	}
}

// userRemote exposes the single user record as a collection
type userRemote struct {
	api *trackapi.UserAPI
}

func (u userRemote) List(ctx context.Context) ([]models.User, error) {
	user, err := u.api.Get(ctx)
	if err != nil {
		return nil, err
	}
	return []models.User{*user}, nil
}

func (u userRemote) Push(ctx context.Context, user models.User) (models.User, error) {
	updated, err := u.api.Update(ctx, user)
	if err != nil {
		return models.User{}, err
	}
	return *updated, nil
}
