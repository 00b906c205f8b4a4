package braintrust

import (
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config controls a Collector. The struct tags follow the usual
// config-loader conventions but filling it from the environment is up to
// the embedding process.
//
// Source identifies where rows come from: a program name, a container
// name, anything useful. It may embed a semver version, eg
// "checkout-worker-1.4.2"; if it does not, Version applies.
type Config struct {
	Source        string             `json:"source"        config:"source"        env:"BRAINTRUST_SOURCE"          help:"data source name, may embed a version"`
	Version       string             `json:"version"       config:"version"       env:"BRAINTRUST_VERSION"         help:"data source version (semver)"`
	FlushDelay    time.Duration      `json:"flushDelay"    config:"flushDelay"    env:"BRAINTRUST_FLUSH_DELAY"     help:"how long rows may wait before a drain"`
	MaxBatchItems int                `json:"maxBatchItems" config:"maxBatchItems" env:"BRAINTRUST_MAX_BATCH_ITEMS" help:"rows per network batch (0 = default, negative = unlimited)"`
	MaxBatchBytes int                `json:"maxBatchBytes" config:"maxBatchBytes" env:"BRAINTRUST_MAX_BATCH_BYTES" help:"bytes per network batch (0 = default, negative = unlimited)"`
	OnError       func(error)        `json:"-"`
	Logger        logrus.FieldLogger `json:"-"`
}

// DefaultConfig is the starting point for NewCollector.
var DefaultConfig = Config{
	FlushDelay:    200 * time.Millisecond,
	MaxBatchItems: 100,
	MaxBatchBytes: 6 << 20,
}

var sourceVersionRE = regexp.MustCompile(`^(.+)[- ]v?(\d+\.\d+\.\d+(?:-\S+)?)$`)

// splitSourceVersion separates a trailing semver from the source name,
// falling back to the Version field and then to 0.0.0.
func splitSourceVersion(source, version string) (string, *semver.Version, error) {
	if m := sourceVersionRE.FindStringSubmatch(source); m != nil {
		source = m[1]
		version = m[2]
	} else if version == "" {
		version = "0.0.0"
	}
	sver, err := semver.StrictNewVersion(version)
	if err != nil {
		return "", nil, errors.Wrapf(err, "source version '%s' is not valid semver", version)
	}
	return source, sver, nil
}
