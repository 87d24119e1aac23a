package ipfs

import (
	"os"

	"github.com/spf13/pflag"

	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casregistry"
)

var (
	flagBin  string
	flagRepo string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS repo directory; empty uses $IPFS_PATH (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagRepo != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagRepo)
			}
			return New(Options{Bin: flagBin, Env: env}), nil, nil
		},
	})
}
