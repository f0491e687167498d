package logster

// Config selects verbosity and encoding. Empty values fall back to info/console.
type Config struct {
	Project string `yaml:"project"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

type Logger interface {
	WithPrefix(string) Logger
	WithField(key string, value interface{}) Logger
	WithError(error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Sync() error
}
