// Package taskcache holds the locally cached copy of the remote task dataset
// and the cursor token used to request incremental changes to it.
package taskcache

import "sort"

// InitialCursor asks the remote for a full snapshot.
const InitialCursor = "*"

type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Favorite bool   `json:"is_favorite,omitempty"`
}

type Due struct {
	Date   string `json:"date,omitempty"`
	String string `json:"string,omitempty"`
}

type Item struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ProjectID string `json:"project_id"`
	Priority  int    `json:"priority,omitempty"`
	Due       *Due   `json:"due,omitempty"`
}

// Dataset is the active set of projects and items. Ids are unique within
// each slice; both slices are kept sorted by id.
type Dataset struct {
	Projects []Project `json:"projects"`
	Items    []Item    `json:"items"`
}

// Snapshot pairs a dataset with the cursor that produced it.
type Snapshot struct {
	Cursor  string
	Dataset Dataset
}

// Empty returns the snapshot used when there is no usable cache.
func Empty() Snapshot {
	return Snapshot{Cursor: InitialCursor, Dataset: Dataset{Projects: []Project{}, Items: []Item{}}}
}

// Delta is one sync response worth of changes.
type Delta struct {
	// Full marks a complete snapshot that replaces the dataset outright.
	Full     bool
	Projects []Project
	Items    []Item

	RemovedProjects []string
	RemovedItems    []string
}

// Merge applies d to ds. Incoming records overwrite existing ones with the
// same id; removals are applied after upserts. A full delta discards ds.
func Merge(ds Dataset, d Delta) Dataset {
	var projects map[string]Project
	var items map[string]Item
	if d.Full {
		projects = make(map[string]Project, len(d.Projects))
		items = make(map[string]Item, len(d.Items))
	} else {
		projects = make(map[string]Project, len(ds.Projects)+len(d.Projects))
		for _, p := range ds.Projects {
			projects[p.ID] = p
		}
		items = make(map[string]Item, len(ds.Items)+len(d.Items))
		for _, it := range ds.Items {
			items[it.ID] = it
		}
	}

	for _, p := range d.Projects {
		projects[p.ID] = p
	}
	for _, it := range d.Items {
		items[it.ID] = cloneItem(it)
	}
	for _, id := range d.RemovedProjects {
		delete(projects, id)
	}
	for _, id := range d.RemovedItems {
		delete(items, id)
	}

	out := Dataset{
		Projects: make([]Project, 0, len(projects)),
		Items:    make([]Item, 0, len(items)),
	}
	for _, p := range projects {
		out.Projects = append(out.Projects, p)
	}
	for _, it := range items {
		out.Items = append(out.Items, it)
	}
	sort.Slice(out.Projects, func(i, j int) bool { return out.Projects[i].ID < out.Projects[j].ID })
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (ds Dataset) Clone() Dataset {
	out := Dataset{
		Projects: append([]Project(nil), ds.Projects...),
		Items:    make([]Item, len(ds.Items)),
	}
	for i, it := range ds.Items {
		out.Items[i] = cloneItem(it)
	}
	if out.Projects == nil {
		out.Projects = []Project{}
	}
	return out
}

func (ds Dataset) Project(id string) (Project, bool) {
	for _, p := range ds.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

func (ds Dataset) Item(id string) (Item, bool) {
	for _, it := range ds.Items {
		if it.ID == id {
			return cloneItem(it), true
		}
	}
	return Item{}, false
}

func cloneItem(it Item) Item {
	if it.Due != nil {
		due := *it.Due
		it.Due = &due
	}
	return it
}
