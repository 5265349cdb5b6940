package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvProduction 輸出 JSON 格式
const EnvProduction = "prod"

// New 依環境建立 zap Logger
// prod: JSON、Info 以上；其他: 彩色 console、Debug 以上
func New(env string) (*zap.Logger, error) {
	var config zap.Config
	if env == EnvProduction {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build(zap.AddStacktrace(zap.DPanicLevel))
}
