package ledger

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/gpuheald/ledger.db"
)

type Config struct {
	DBPath        string
	RetentionDays int
}

func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath,
		RetentionDays: 30,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.RetentionDays < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.RetentionDays)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
