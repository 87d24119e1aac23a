package archive

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casregistry"
)

var flagArchivePath string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "archive",
		Description: "Read-only indexed archive file",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagArchivePath, "archive-path", "", "Archive file (for --backend=archive)")
		},
		Open: func() (storage.CAS, func() error, error) {
			if flagArchivePath == "" {
				return nil, nil, fmt.Errorf("missing --archive-path")
			}
			r, err := Open(flagArchivePath, ReaderOptions{})
			if err != nil {
				return nil, nil, err
			}
			return r, r.Close, nil
		},
	})
}
