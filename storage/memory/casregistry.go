package memory

import (
	"github.com/spf13/pflag"

	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casregistry"
)

var flagSizeHint int

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "memory",
		Description: "In-memory CAS (lost on exit)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.IntVar(&flagSizeHint, "memory-size-hint", 0, "Expected number of blocks (for --backend=memory)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(flagSizeHint), nil, nil
		},
	})
}
