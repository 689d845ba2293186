package tasksync

import (
	"sort"
	"strings"
	"time"

	"github.com/vango-go/taskvoice/pkg/taskcache"
)

const unknownProject = "Unknown Project"

// FormatContext renders the active items grouped by project. Groups are
// ordered by project name; an item whose project is not in the dataset is
// listed under "Unknown Project", which sorts as an empty name.
func FormatContext(ds taskcache.Dataset, now time.Time) string {
	names := make(map[string]string, len(ds.Projects))
	for _, p := range ds.Projects {
		names[p.ID] = p.Name
	}

	groups := make(map[string][]taskcache.Item)
	for _, it := range ds.Items {
		groups[it.ProjectID] = append(groups[it.ProjectID], it)
	}

	projectIDs := make([]string, 0, len(groups))
	for id := range groups {
		projectIDs = append(projectIDs, id)
	}
	sort.SliceStable(projectIDs, func(i, j int) bool {
		ni, nj := names[projectIDs[i]], names[projectIDs[j]]
		if ni != nj {
			return ni < nj
		}
		return projectIDs[i] < projectIDs[j]
	})

	var lines []string
	for _, id := range projectIDs {
		name, ok := names[id]
		if !ok {
			name = unknownProject
		}
		lines = append(lines, name)
		for _, it := range groups[id] {
			lines = append(lines, " - "+it.Content+dueAnnotation(it.Due, now))
		}
	}
	return strings.Join(lines, "\n")
}

func dueAnnotation(due *taskcache.Due, now time.Time) string {
	if due == nil || (due.Date == "" && due.String == "") {
		return ""
	}
	d, err := time.ParseInLocation(time.DateOnly, due.Date, now.Location())
	if err != nil {
		raw := due.String
		if raw == "" {
			raw = due.Date
		}
		return " [" + raw + "]"
	}
	y, m, day := now.Date()
	if d.Year() == y && d.Month() == m && d.Day() == day {
		return " [today]"
	}
	return " [" + d.Format("02 Jan 2006") + "]"
}
