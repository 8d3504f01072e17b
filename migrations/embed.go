// Package migrations embeds the Postgres schema.
package migrations

import (
	"embed"
	"io/fs"
	"slices"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Up returns the names and bodies of the up migrations in apply order.
func Up() ([]string, map[string]string, error) {
	entries, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, nil, err
	}
	slices.Sort(entries)
	bodies := make(map[string]string, len(entries))
	for _, name := range entries {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, nil, err
		}
		bodies[name] = string(data)
	}
	return entries, bodies, nil
}

// Version returns the numeric prefix of a migration file name.
func Version(name string) string {
	version, _, _ := strings.Cut(name, "_")
	return version
}
