package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFileDataCollector struct {
	fileName string
	file     *os.File
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	encoderConfig.CallerKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		file:     logFile,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) RecordStepSuccess(actionSetName string, actionSetId string, actionName string, actionIdx int, status string) {
	lc.logger.Info("success", zap.String("name", actionSetName), zap.String("id", actionSetId), zap.String("action", actionName), zap.Int("actionIdx", actionIdx), zap.String("status", status))
}

func (lc *LogFileDataCollector) RecordStepFailure(actionSetName string, actionSetId string, actionName string, actionIdx int, reason string) {
	lc.logger.Info("failure", zap.String("name", actionSetName), zap.String("id", actionSetId), zap.String("action", actionName), zap.Int("actionIdx", actionIdx), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) Close() error {
	if err := lc.logger.Sync(); err != nil {
		_ = lc.file.Close()
		return err
	}
	return lc.file.Close()
}
