package config

import (
	"flag"
	"os"
	"strings"
)

// BusOptions is Gozo's connection bootstrap: everything needed to dial the
// NATS server. It is assembled exactly once, at process start, from CLI
// flags and NATS_* environment variables — never from the hot-reloadable
// Config. Credentials hot-swapping mid-connection is undefined behavior, so
// this struct deliberately has no path into ConfigManager.
type BusOptions struct {
	Address  string
	Secure   bool
	Token    string
	User     string
	Password string
	CertFile string
	KeyFile  string
	NKey     string
	Creds    string // path to a credentials/JWT file
}

// RegisterBusFlags binds the bus connection flags onto fs, mirroring the
// short-form flags of the process Gozo replaces (-a/-s/-t/-u/-p/-c/-k/-n/-j).
func RegisterBusFlags(fs *flag.FlagSet) *BusOptions {
	opts := &BusOptions{}
	fs.StringVar(&opts.Address, "address", "", "NATS server address (default: nats://localhost:4222)")
	fs.StringVar(&opts.Address, "a", "", "shorthand for -address")
	fs.BoolVar(&opts.Secure, "secure", false, "require a TLS connection")
	fs.BoolVar(&opts.Secure, "s", false, "shorthand for -secure")
	fs.StringVar(&opts.Token, "token", "", "token authentication")
	fs.StringVar(&opts.Token, "t", "", "shorthand for -token")
	fs.StringVar(&opts.User, "user", "", "username")
	fs.StringVar(&opts.User, "u", "", "shorthand for -user")
	fs.StringVar(&opts.Password, "password", "", "password")
	fs.StringVar(&opts.Password, "p", "", "shorthand for -password")
	fs.StringVar(&opts.CertFile, "cert", "", "client TLS certificate")
	fs.StringVar(&opts.CertFile, "c", "", "shorthand for -cert")
	fs.StringVar(&opts.KeyFile, "key", "", "client TLS key")
	fs.StringVar(&opts.KeyFile, "k", "", "shorthand for -key")
	fs.StringVar(&opts.NKey, "nkey", "", "NKey authentication seed file")
	fs.StringVar(&opts.NKey, "n", "", "shorthand for -nkey")
	fs.StringVar(&opts.Creds, "jwt", "", "path to a credentials file")
	fs.StringVar(&opts.Creds, "j", "", "shorthand for -jwt")
	return opts
}

// ResolveBusOptions fills any field RegisterBusFlags left empty from the
// corresponding NATS_<FIELD> environment variable, then applies defaults.
// Precedence is flag > env > default, matching the args.get()/get_bool()
// resolution the original entry point used.
func ResolveBusOptions(opts *BusOptions) *BusOptions {
	if opts == nil {
		opts = &BusOptions{}
	}
	opts.Address = firstNonEmpty(opts.Address, os.Getenv("NATS_ADDRESS"), "nats://localhost:4222")
	opts.Token = firstNonEmpty(opts.Token, os.Getenv("NATS_TOKEN"), "")
	opts.User = firstNonEmpty(opts.User, os.Getenv("NATS_USER"), "")
	opts.Password = firstNonEmpty(opts.Password, os.Getenv("NATS_PASSWORD"), "")
	opts.CertFile = firstNonEmpty(opts.CertFile, os.Getenv("NATS_CERT"), "")
	opts.KeyFile = firstNonEmpty(opts.KeyFile, os.Getenv("NATS_KEY"), "")
	opts.NKey = firstNonEmpty(opts.NKey, os.Getenv("NATS_NKEY"), "")
	opts.Creds = firstNonEmpty(opts.Creds, os.Getenv("NATS_JWT"), "")
	if !opts.Secure {
		opts.Secure = strings.TrimSpace(os.Getenv("NATS_SECURE")) != ""
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
