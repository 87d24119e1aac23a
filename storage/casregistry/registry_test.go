package casregistry

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/cidstore/storage"
)

type stubCAS struct{ label string }

func (stubCAS) Put(cid.Cid, []byte) error   { return storage.ErrReadOnly }
func (stubCAS) Get(cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (stubCAS) Has(cid.Cid) bool            { return false }

var stubLabel string

func init() {
	MustRegister(Backend{
		Name:  "stub-test",
		Usage: UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&stubLabel, "stub-label", "default", "label")
		},
		Open: func() (storage.CAS, func() error, error) {
			return stubCAS{label: stubLabel}, nil, nil
		},
	})
}

func TestRegister_Validation(t *testing.T) {
	assert.Error(t, Register(Backend{}))
	assert.Error(t, Register(Backend{Name: "x"}))
	assert.Error(t, Register(Backend{
		Name:          "stub-test",
		Usage:         UsageCLI,
		RegisterFlags: func(*pflag.FlagSet) {},
		Open:          func() (storage.CAS, func() error, error) { return nil, nil, nil },
	}), "duplicate name must be rejected")
}

func TestOpen_RespectsUsage(t *testing.T) {
	_, _, err := Open("stub-test", UsageCLI)
	assert.Error(t, err)

	_, _, err = Open("no-such-backend", UsageDaemon)
	assert.Error(t, err)

	cas, closeFn, err := Open("stub-test", UsageDaemon)
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.NotNil(t, cas)

	assert.Contains(t, Names(UsageDaemon), "stub-test")
	assert.NotContains(t, Names(UsageCLI), "stub-test")
}

func TestOpenWithConfig_AppliesValues(t *testing.T) {
	cas, _, err := OpenWithConfig("stub-test", UsageDaemon, map[string]string{"stub-label": "from-config"})
	require.NoError(t, err)
	assert.Equal(t, "from-config", cas.(stubCAS).label)

	cas, _, err = OpenWithConfig("stub-test", UsageDaemon, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", cas.(stubCAS).label)

	_, _, err = OpenWithConfig("stub-test", UsageDaemon, map[string]string{"unknown": "x"})
	assert.Error(t, err)
}
