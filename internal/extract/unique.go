package extract

import "dbmock/internal/core"

// GroupUniqueConstraints reconstructs composite unique constraints from flat
// index entries: rows sharing an index name that is unique and not the
// primary key form one constraint, columns ordered by in-index sequence.
// Entries arrive catalog-ordered (index name, then sequence), so appending
// preserves column order.
func GroupUniqueConstraints(entries []*core.IndexEntry) [][]string {
	byName := make(map[string][]string)
	var names []string
	for _, e := range entries {
		if !e.Unique || e.Name == "PRIMARY" {
			continue
		}
		if _, ok := byName[e.Name]; !ok {
			names = append(names, e.Name)
		}
		byName[e.Name] = append(byName[e.Name], e.Column)
	}

	out := make([][]string, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}
