package log

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`
	Pattern string           `mapstructure:"pattern" yaml:"pattern"`
	Time    string           `mapstructure:"time" yaml:"time"`
	Stdout  bool             `mapstructure:"stdout" yaml:"stdout"`
	File    *FileAppenderOpt `mapstructure:"file" yaml:"file,omitempty"`
}
