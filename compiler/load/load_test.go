package load

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	specs, err := (&Config{Paths: []string{"./testdata/valid"}}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Equal(t, "valid", spec.Package)
	require.Len(t, spec.Schemas, 2)

	comment, post := spec.Schemas[0], spec.Schemas[1]
	assert.Equal(t, "Comment", comment.Name)
	assert.Equal(t, "comments", comment.Table)

	assert.Equal(t, "Post", post.Name)
	assert.Equal(t, "posts", post.Table)
	require.Len(t, post.Fields, 4) // scratch is tagged out

	id := post.Fields[0]
	assert.Equal(t, "id", id.Name)
	assert.True(t, id.Identifying)
	assert.True(t, id.Auto)

	owner := post.Fields[1]
	assert.Equal(t, "ownerID", owner.GoName)
	assert.Equal(t, "owner_id", owner.Column)
	assert.Equal(t, "int", owner.Type)
	assert.False(t, owner.Identifying)

	title := post.Fields[2]
	assert.Equal(t, "title", title.Name)
	assert.Equal(t, "title", title.Column)
	assert.Equal(t, "string", title.Type)

	created := post.Fields[3]
	assert.Equal(t, "created_at", created.Name)
	assert.Equal(t, "time.Time", created.Type)
}

func TestLoadNameFilter(t *testing.T) {
	specs, err := (&Config{
		Paths: []string{"./testdata/valid"},
		Names: []string{"Comment"},
	}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, specs[0].Schemas, 1)
	assert.Equal(t, "Comment", specs[0].Schemas[0].Name)
}

func TestLoadUnsupportedType(t *testing.T) {
	_, err := (&Config{Paths: []string{"./testdata/failure"}}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported field type")
}

func TestLoadExportedField(t *testing.T) {
	_, err := (&Config{Paths: []string{"./testdata/exported"}}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be unexported")
}

func TestLoadNoPaths(t *testing.T) {
	_, err := (&Config{}).Load(context.Background())
	assert.Error(t, err)
}
