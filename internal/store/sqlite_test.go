package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis/internal/store"
)

func openMemory(t *testing.T) *store.SQLiteDB {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReplaceFileAndBacklinks(t *testing.T) {
	db := openMemory(t)

	home := store.FileRecord{Path: "/w/templates/pages/home.njk", LastModified: 10}
	about := store.FileRecord{Path: "/w/templates/pages/about.njk", LastModified: 20}
	button := "/w/templates/components/button.njk"

	require.NoError(t, db.ReplaceFile(home, []store.LinkRecord{
		{Target: button, Raw: "button", Kind: "include", PathStart: 12, PathEnd: 18},
		{Target: "", Raw: "missing-file", Kind: "include", PathStart: 40, PathEnd: 52},
	}))
	require.NoError(t, db.ReplaceFile(about, []store.LinkRecord{
		{Target: button, Raw: "components/button", Kind: "include", PathStart: 12, PathEnd: 29},
	}))

	links, err := db.GetLinks(home.Path)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, home.Path, links[0].Source)
	assert.Equal(t, "button", links[0].Raw)
	assert.Equal(t, 40, links[1].PathStart)

	back, err := db.GetBacklinks(button)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, about.Path, back[0].Source)
	assert.Equal(t, home.Path, back[1].Source)

	unresolved, err := db.UnresolvedSources()
	require.NoError(t, err)
	assert.Equal(t, []string{home.Path}, unresolved)

	// replacing swaps the old links out
	home.LastModified = 11
	require.NoError(t, db.ReplaceFile(home, nil))
	links, err = db.GetLinks(home.Path)
	require.NoError(t, err)
	assert.Empty(t, links)
	rec, err := db.GetFile(home.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.LastModified)

	unresolved, err = db.UnresolvedSources()
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestDeleteFileCascades(t *testing.T) {
	db := openMemory(t)
	src := store.FileRecord{Path: "/w/a.njk", LastModified: 1}
	require.NoError(t, db.ReplaceFile(src, []store.LinkRecord{{Target: "/w/b.njk", Raw: "b", Kind: "include"}}))

	require.NoError(t, db.DeleteFile(src.Path))
	back, err := db.GetBacklinks("/w/b.njk")
	require.NoError(t, err)
	assert.Empty(t, back)

	assert.ErrorIs(t, db.DeleteFile(src.Path), store.ErrNotFound)
	_, err = db.GetFile(src.Path)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAllFilesAndClear(t *testing.T) {
	db := openMemory(t)
	for _, p := range []string{"/w/b.njk", "/w/a.njk"} {
		require.NoError(t, db.ReplaceFile(store.FileRecord{Path: p, LastModified: 5}, nil))
	}
	files, err := db.AllFiles()
	require.NoError(t, err)
	assert.Equal(t, []store.FileRecord{{Path: "/w/a.njk", LastModified: 5}, {Path: "/w/b.njk", LastModified: 5}}, files)

	require.NoError(t, db.Clear())
	files, err = db.AllFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.ReplaceFile(store.FileRecord{Path: "/w/a.njk", LastModified: 7}, []store.LinkRecord{
		{Target: "/w/b.njk", Raw: "b", Kind: "next", PathStart: 3, PathEnd: 4},
	}))
	require.NoError(t, db.Close())

	db, err = store.Open(path)
	require.NoError(t, err)
	defer db.Close()
	links, err := db.GetLinks("/w/a.njk")
	require.NoError(t, err)
	assert.Equal(t, []store.LinkRecord{{
		Source: "/w/a.njk", Target: "/w/b.njk", Raw: "b", Kind: "next", PathStart: 3, PathEnd: 4,
	}}, links)
}
