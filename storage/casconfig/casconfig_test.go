package casconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casregistry"
	_ "xdao.co/cidstore/storage/localfs"
	_ "xdao.co/cidstore/storage/memory"
)

func TestParse_Validates(t *testing.T) {
	for name, doc := range map[string]string{
		"no backends":    "write_policy: first\n",
		"missing name":   "backends:\n  - config: {a: b}\n",
		"duplicate id":   "backends:\n  - name: memory\n  - name: localfs\n    id: memory\n",
		"bad policy":     "write_policy: some\nbackends:\n  - name: memory\n",
		"unknown field":  "backends:\n  - name: memory\n    flavour: x\n",
		"not a document": "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_ReplicatesToAllBackends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cas.yaml")
	doc := "write_policy: all\n" +
		"backends:\n" +
		"  - name: memory\n" +
		"    id: hot\n" +
		"  - name: localfs\n" +
		"    id: cold\n" +
		"    config:\n" +
		"      localfs-dir: " + filepath.Join(dir, "blocks") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "")
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	rep, ok := cas.(storage.ReplicatingCAS)
	require.True(t, ok, "got %T", cas)

	block := []byte("replicated")
	id := cidutil.CIDv1DagCBORBlake2b256(block)
	written, err := rep.PutAll(id, block)
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "cold"}, written)

	for _, b := range rep.Backends {
		got, err := b.CAS.Get(id)
		require.NoError(t, err, b.Name)
		assert.Equal(t, block, got)
	}
}

func TestOpen_PreferredBackendTakesWrites(t *testing.T) {
	cfg, err := Parse([]byte("backends:\n  - name: memory\n    id: a\n  - name: memory\n    id: b\n"))
	require.NoError(t, err)

	cas, _, err := cfg.Open(casregistry.UsageCLI, "b")
	require.NoError(t, err)
	multi, ok := cas.(storage.MultiCAS)
	require.True(t, ok, "got %T", cas)
	require.Len(t, multi.Adapters, 2)

	block := []byte("preferred")
	id := cidutil.CIDv1DagCBORBlake2b256(block)
	require.NoError(t, multi.Put(id, block))
	assert.True(t, multi.Adapters[0].Has(id))
	assert.False(t, multi.Adapters[1].Has(id))

	_, _, err = cfg.Open(casregistry.UsageCLI, "missing")
	assert.Error(t, err)
}

func TestLoadFile_EmptyPath(t *testing.T) {
	_, err := LoadFile("")
	assert.Error(t, err)
}
