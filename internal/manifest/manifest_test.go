package manifest

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NestedTree(t *testing.T) {
	root, err := Parse([]byte(`{"a.txt":"h1","dir":{"b.txt":"h2","empty":{}}}`))
	require.NoError(t, err)

	assert.True(t, root.IsDir())
	assert.Equal(t, 2, root.Count())
	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, root.Paths())

	dir := root.Children["dir"]
	require.NotNil(t, dir)
	assert.True(t, dir.IsDir())
	assert.True(t, dir.Children["empty"].IsDir())
	assert.Equal(t, 0, dir.Children["empty"].Count())
}

func TestParse_NonStringLeaves(t *testing.T) {
	root, err := Parse([]byte(`{"n":123,"b":true,"z":null}`))
	require.NoError(t, err)

	assert.Equal(t, "123", root.Children["n"].Hash)
	assert.Equal(t, "true", root.Children["b"].Hash)
	assert.Equal(t, "null", root.Children["z"].Hash)
	assert.Equal(t, 3, root.Count())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse([]byte(`["a","b"]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	root := Dir(map[string]*Node{
		"a.txt": Leaf("h1"),
		"dir": Dir(map[string]*Node{
			"b.txt": Leaf("h2"),
			"sub":   Dir(map[string]*Node{"c.txt": Leaf("h3")}),
		}),
	})

	hash, ok := root.Lookup("dir/sub/c.txt")
	assert.True(t, ok)
	assert.Equal(t, "h3", hash)

	hash, ok = root.Lookup("a.txt")
	assert.True(t, ok)
	assert.Equal(t, "h1", hash)

	_, ok = root.Lookup("dir")
	assert.False(t, ok)

	_, ok = root.Lookup("missing.txt")
	assert.False(t, ok)
}

func TestCount_Empty(t *testing.T) {
	assert.Equal(t, 0, Dir(nil).Count())
	var nilNode *Node
	assert.Equal(t, 0, nilNode.Count())
}

func TestMarshalJSON_RoundTripsShape(t *testing.T) {
	root := Dir(map[string]*Node{
		"a.txt": Leaf("h1"),
		"dir":   Dir(map[string]*Node{"b.txt": Leaf("h2")}),
	})

	data, err := json.Marshal(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.txt":"h1","dir":{"b.txt":"h2"}}`, string(data))

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, root.Paths(), parsed.Paths())
}
