package models

func (w Workspace) Kind() Kind { return KindWorkspace }
func (w Workspace) EntityID() int64 { return w.ID }
func (w Workspace) Sync() SyncMeta { return w.SyncMeta }
func (w Workspace) WithID(id int64) Workspace {
	w.ID = id
	return w
}
func (w Workspace) WithSync(meta SyncMeta) Workspace {
	w.SyncMeta = meta
	return w
}

func (u User) Kind() Kind { return KindUser }
func (u User) EntityID() int64 { return u.ID }
func (u User) Sync() SyncMeta { return u.SyncMeta }
func (u User) WithID(id int64) User {
	u.ID = id
	return u
}
func (u User) WithSync(meta SyncMeta) User {
	u.SyncMeta = meta
	return u
}

func (c Client) Kind() Kind { return KindClient }
func (c Client) EntityID() int64 { return c.ID }
func (c Client) Sync() SyncMeta { return c.SyncMeta }
func (c Client) WithID(id int64) Client {
	c.ID = id
	return c
}
func (c Client) WithSync(meta SyncMeta) Client {
	c.SyncMeta = meta
	return c
}

func (p Project) Kind() Kind { return KindProject }
func (p Project) EntityID() int64 { return p.ID }
func (p Project) Sync() SyncMeta { return p.SyncMeta }
func (p Project) WithID(id int64) Project {
	p.ID = id
	return p
}
func (p Project) WithSync(meta SyncMeta) Project {
	p.SyncMeta = meta
	return p
}

func (t Task) Kind() Kind { return KindTask }
func (t Task) EntityID() int64 { return t.ID }
func (t Task) Sync() SyncMeta { return t.SyncMeta }
func (t Task) WithID(id int64) Task {
	t.ID = id
	return t
}
func (t Task) WithSync(meta SyncMeta) Task {
	t.SyncMeta = meta
	return t
}

func (t Tag) Kind() Kind { return KindTag }
func (t Tag) EntityID() int64 { return t.ID }
func (t Tag) Sync() SyncMeta { return t.SyncMeta }
func (t Tag) WithID(id int64) Tag {
	t.ID = id
	return t
}
func (t Tag) WithSync(meta SyncMeta) Tag {
	t.SyncMeta = meta
	return t
}

func (t TimeEntry) Kind() Kind { return KindTimeEntry }
func (t TimeEntry) EntityID() int64 { return t.ID }
func (t TimeEntry) Sync() SyncMeta { return t.SyncMeta }
func (t TimeEntry) WithID(id int64) TimeEntry {
	t.ID = id
	return t
}
func (t TimeEntry) WithSync(meta SyncMeta) TimeEntry {
	t.SyncMeta = meta
	return t
}

var (
	_ Entity[Workspace] = Workspace{}
	_ Entity[User]      = User{}
	_ Entity[Client]    = Client{}
	_ Entity[Project]   = Project{}
	_ Entity[Task]      = Task{}
	_ Entity[Tag]       = Tag{}
	_ Entity[TimeEntry] = TimeEntry{}
)
