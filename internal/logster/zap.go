package logster

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapAdapter struct {
	prefix string
	*zap.SugaredLogger
}

func (z *ZapAdapter) WithPrefix(prefix string) Logger {
	return &ZapAdapter{SugaredLogger: z.SugaredLogger, prefix: prefix}
}

func (z *ZapAdapter) WithField(key string, value interface{}) Logger {
	return z.with(z.prefix+key, value)
}

func (z *ZapAdapter) WithError(err error) Logger {
	if err != nil {
		return z.with(zap.String("error", err.Error()))
	}
	return z.with(zap.String("error", "<nil>"))
}

func (z *ZapAdapter) with(args ...interface{}) Logger {
	return &ZapAdapter{SugaredLogger: z.With(args...), prefix: z.prefix}
}

// LogIfError logs err at error level and hands it back unchanged.
func LogIfError(logger Logger, err error, msg string, args ...interface{}) error {
	if err != nil {
		logger.WithError(err).Errorf(msg, args...)
	}
	return err
}

var textToZapLevelMap = map[string]zapcore.Level{
	"error": zapcore.ErrorLevel,
	"warn":  zapcore.WarnLevel,
	"info":  zapcore.InfoLevel,
	"debug": zapcore.DebugLevel,
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	if l, ok := textToZapLevelMap[s]; ok {
		return l
	}
	return zapcore.InfoLevel
}

func New(w zapcore.WriteSyncer, cfg Config) *ZapAdapter {
	if cfg.Project == "" {
		cfg.Project = "jobfetch"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.999Z07:00"))
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderCfg)
	default:
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, w, ParseLevel(cfg.Level))
	sugar := zap.New(core, zap.Fields(zap.String("project", cfg.Project))).Sugar()

	return &ZapAdapter{SugaredLogger: sugar}
}

// Nop returns a logger that discards everything.
func Nop() *ZapAdapter {
	return &ZapAdapter{SugaredLogger: zap.NewNop().Sugar()}
}
